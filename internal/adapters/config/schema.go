package config

// Workfile represents the structure of the kiln.work.yaml configuration file.
type Workfile struct {
	Version     string   `yaml:"version"`
	Root        string   `yaml:"root"`
	CodeVersion string   `yaml:"codeVersion"`
	Projects    []string `yaml:"projects"`
}

// Kilnfile represents the structure of the kiln.yaml configuration file.
type Kilnfile struct {
	Version     string              `yaml:"version"`
	Project     string              `yaml:"project"`
	Root        string              `yaml:"root"`
	CodeVersion string              `yaml:"codeVersion"`
	Tasks       map[string]*TaskDTO `yaml:"tasks"`
}

// TaskDTO represents a task definition in the configuration.
type TaskDTO struct {
	Cmd         []string          `yaml:"cmd"`
	Input       []string          `yaml:"input"`
	Target      []string          `yaml:"target"`
	Exclude     []string          `yaml:"exclude"`
	DependsOn   []string          `yaml:"dependsOn"`
	Environment map[string]string `yaml:"environment"`
	WorkingDir  string            `yaml:"workingDir"`
	Kind        string            `yaml:"kind"`
	Platform    string            `yaml:"platform"`
	Module      string            `yaml:"module"`
	Variant     string            `yaml:"variant"`
}
