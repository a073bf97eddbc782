package domain

// TaskDefinition is a task as declared in configuration. Paths are absolute.
type TaskDefinition struct {
	ID          TaskID
	Command     []string
	Inputs      []string
	Targets     []string
	Exclude     []string
	DependsOn   []TaskID
	Environment map[string]string
	WorkingDir  string
	Metadata    TaskMetadata
}
