package ports

import "go.trai.ch/kiln/internal/core/domain"

// Project is a loaded kiln.yaml.
type Project struct {
	// Root is the absolute directory tasks run in.
	Root string
	// CodeVersion invalidates every cache entry when it changes.
	CodeVersion string
	// Tasks holds the configured tasks in a deterministic order.
	Tasks []domain.TaskDefinition
}

// ConfigLoader defines the interface for loading the build configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load finds kiln.yaml starting at cwd and builds the project.
	Load(cwd string) (*Project, error)

	// DiscoverRoot walks up from cwd to find the directory containing kiln.yaml.
	DiscoverRoot(cwd string) (string, error)
}
