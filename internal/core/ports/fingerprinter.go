package ports

import "go.trai.ch/kiln/internal/core/domain"

// Fingerprinter turns configuration and files into comparable state.
//
//go:generate mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	// Fingerprint hashes the sorted configuration and the inputs in the given order.
	// Missing inputs contribute a marker instead of failing.
	Fingerprint(configuration map[string]string, inputs []string) (domain.Fingerprint, error)

	// Snapshot records the state of every file under paths, skipping excluded paths.
	// With failOnMissing a missing path is an error, otherwise it is recorded as missing.
	Snapshot(paths, excluded []string, failOnMissing bool) (domain.FileStates, error)
}
