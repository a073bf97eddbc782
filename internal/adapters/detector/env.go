// Package detector selects the output mode from flags and the environment.
package detector

import (
	"os"

	"go.trai.ch/kiln/internal/core/domain"
	"golang.org/x/term"
)

// OutputMode represents the rendering mode for the application.
type OutputMode int

const (
	// ModeAuto automatically detects the appropriate mode.
	ModeAuto OutputMode = iota
	// ModeTUI forces the interactive TUI renderer.
	ModeTUI
	// ModeLinear forces the linear CI renderer.
	ModeLinear
)

func (m OutputMode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModeLinear:
		return "linear"
	default:
		return "auto"
	}
}

// ParseMode parses an --output-mode value. "ci" is an alias for "linear".
func ParseMode(flag string) (OutputMode, error) {
	switch flag {
	case "auto", "":
		return ModeAuto, nil
	case "tui":
		return ModeTUI, nil
	case "linear", "ci":
		return ModeLinear, nil
	default:
		return ModeAuto, domain.Tag(domain.ErrInvalidOutputMode, "mode", flag)
	}
}

// Detect returns ModeLinear when output is not a terminal or CI is set,
// and ModeTUI otherwise.
func Detect(isTTY bool, getenv func(string) string) OutputMode {
	ci := getenv("CI")
	if !isTTY || ci == "true" || ci == "1" {
		return ModeLinear
	}
	return ModeTUI
}

// DetectEnvironment inspects f and the process environment.
func DetectEnvironment(f *os.File) OutputMode {
	return Detect(f != nil && term.IsTerminal(int(f.Fd())), os.Getenv)
}

// ResolveMode applies a user override to the detected mode.
func ResolveMode(autoDetected, requested OutputMode) OutputMode {
	if requested == ModeAuto {
		return autoDetected
	}
	return requested
}
