// Package output creates termenv outputs with the color rules shared by the
// logger and the renderers. NO_COLOR always wins.
package output

import (
	"io"
	"os"

	"github.com/muesli/termenv"
)

func noColor() bool {
	return os.Getenv("NO_COLOR") != ""
}

// ColorProfile detects the terminal's capabilities.
func ColorProfile() termenv.Profile {
	if noColor() {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

// ColorProfileANSI returns the basic ANSI profile, which CI log viewers
// render reliably.
func ColorProfileANSI() termenv.Profile {
	if noColor() {
		return termenv.Ascii
	}
	return termenv.ANSI
}

// ColorProfileTrueColor returns the full color profile used by the
// interactive interface.
func ColorProfileTrueColor() termenv.Profile {
	if noColor() {
		return termenv.Ascii
	}
	return termenv.TrueColor
}

// New creates a termenv.Output on w using the detected profile.
// A nil w selects stderr.
func New(w io.Writer, opts ...termenv.OutputOption) *termenv.Output {
	return NewWithProfile(w, ColorProfile, opts...)
}

// NewWithProfile creates a termenv.Output on w using profileFn.
func NewWithProfile(w io.Writer, profileFn func() termenv.Profile, opts ...termenv.OutputOption) *termenv.Output {
	if w == nil {
		w = os.Stderr
	}

	opts = append(opts,
		termenv.WithProfile(profileFn()),
		termenv.WithTTY(true),
	)
	return termenv.NewOutput(w, opts...)
}
