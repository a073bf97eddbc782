// Package config loads kiln.yaml and kiln.work.yaml into task definitions.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using YAML files.
type Loader struct {
	Logger ports.Logger
	FS     FileSystem
}

// NewLoader creates a new Loader reading from the OS file system.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, FS: NewOSFS()}
}

// Mode represents the configuration mode.
type Mode string

const (
	// ModeWorkspace indicates that kiln has a workfile.
	ModeWorkspace Mode = "workspace"
	// ModeStandalone indicates that kiln has only one kiln.yaml.
	ModeStandalone Mode = "standalone"
)

var (
	validProjectNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validTaskNameRegex    = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// Load finds the configuration starting at cwd and returns its tasks.
// A kiln.work.yaml in cwd or any parent takes precedence over kiln.yaml.
func (l *Loader) Load(cwd string) (*ports.Project, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeStandalone:
		return l.loadKilnfile(configPath)
	case ModeWorkspace:
		return l.loadWorkfile(configPath)
	default:
		return nil, domain.Tag(domain.ErrConfigNotFound, "mode", mode)
	}
}

// DiscoverRoot returns the root directory of the configuration found from cwd.
func (l *Loader) DiscoverRoot(cwd string) (string, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return "", err
	}

	var root string
	switch mode {
	case ModeWorkspace:
		var workfile Workfile
		if err := l.readYAML(configPath, &workfile); err != nil {
			return "", err
		}
		root = workfile.Root
	default:
		var kilnfile Kilnfile
		if err := l.readYAML(configPath, &kilnfile); err != nil {
			return "", err
		}
		root = kilnfile.Root
	}
	return resolveRoot(configPath, root), nil
}

func (l *Loader) findConfiguration(cwd string) (string, Mode, error) {
	currentDir := cwd
	var standaloneCandidate string

	for {
		workfilePath := filepath.Join(currentDir, domain.WorkFileName)
		if _, err := l.FS.Stat(workfilePath); err == nil {
			return workfilePath, ModeWorkspace, nil
		}

		if standaloneCandidate == "" {
			kilnfilePath := filepath.Join(currentDir, domain.KilnFileName)
			if _, err := l.FS.Stat(kilnfilePath); err == nil {
				standaloneCandidate = kilnfilePath
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	if standaloneCandidate != "" {
		return standaloneCandidate, ModeStandalone, nil
	}
	return "", "", domain.Tag(domain.ErrConfigNotFound, "cwd", cwd)
}

func (l *Loader) loadKilnfile(configPath string) (*ports.Project, error) {
	var kilnfile Kilnfile
	if err := l.readYAML(configPath, &kilnfile); err != nil {
		return nil, err
	}

	if kilnfile.Project != "" {
		l.warn(fmt.Sprintf("'project' defined in %s has no effect in standalone mode", domain.KilnFileName))
	}

	root := resolveRoot(configPath, kilnfile.Root)
	for _, name := range slices.Sorted(maps.Keys(kilnfile.Tasks)) {
		for _, dep := range dtoOf(kilnfile.Tasks, name).DependsOn {
			if _, ok := kilnfile.Tasks[dep]; !ok {
				err := domain.Tag(domain.ErrMissingDependency, "missing_dependency", dep)
				return nil, zerr.With(err, "task", name)
			}
		}
	}

	tasks, err := buildTasks(kilnfile.Tasks, root, "")
	if err != nil {
		return nil, err
	}
	return &ports.Project{Root: root, CodeVersion: kilnfile.CodeVersion, Tasks: tasks}, nil
}

func (l *Loader) loadWorkfile(configPath string) (*ports.Project, error) {
	var workfile Workfile
	if err := l.readYAML(configPath, &workfile); err != nil {
		return nil, err
	}

	workspaceRoot := resolveRoot(configPath, workfile.Root)
	projectPaths, err := l.resolveProjectPaths(workspaceRoot, workfile.Projects)
	if err != nil {
		return nil, err
	}

	project := &ports.Project{Root: workspaceRoot, CodeVersion: workfile.CodeVersion}
	projectNames := make(map[string]string)
	for _, projectPath := range projectPaths {
		tasks, err := l.loadProject(workspaceRoot, projectPath, projectNames)
		if err != nil {
			return nil, err
		}
		project.Tasks = append(project.Tasks, tasks...)
	}
	return project, nil
}

// resolveProjectPaths expands the project globs into sorted, unique directories.
func (l *Loader) resolveProjectPaths(workspaceRoot string, patterns []string) ([]string, error) {
	projectPaths := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := l.FS.Glob(filepath.Join(workspaceRoot, pattern))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "glob pattern failed"), "pattern", pattern)
		}
		for _, match := range matches {
			info, err := l.FS.Stat(match)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", match)
			}
			if info.IsDir() {
				projectPaths[match] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(projectPaths)), nil
}

func (l *Loader) loadProject(workspaceRoot, projectPath string, projectNames map[string]string) ([]domain.TaskDefinition, error) {
	relPath, _ := filepath.Rel(workspaceRoot, projectPath)

	kilnfilePath := filepath.Join(projectPath, domain.KilnFileName)
	if _, err := l.FS.Stat(kilnfilePath); errors.Is(err, fs.ErrNotExist) {
		l.warn(fmt.Sprintf("%s missing in project %s, skipping", domain.KilnFileName, relPath))
		return nil, nil
	}

	var kilnfile Kilnfile
	if err := l.readYAML(kilnfilePath, &kilnfile); err != nil {
		return nil, zerr.With(err, "directory", relPath)
	}
	if err := validateProjectName(kilnfile.Project, relPath); err != nil {
		return nil, err
	}

	if existingPath, exists := projectNames[kilnfile.Project]; exists {
		err := domain.Tag(domain.ErrDuplicateProjectName, "project_name", kilnfile.Project)
		err = zerr.With(err, "first_occurrence", existingPath)
		return nil, zerr.With(err, "duplicate_at", relPath)
	}
	projectNames[kilnfile.Project] = relPath

	if kilnfile.Root != "" {
		l.warn(fmt.Sprintf("'root' defined in %s is ignored in workspace mode", relPath))
	}
	if kilnfile.CodeVersion != "" {
		l.warn(fmt.Sprintf("'codeVersion' defined in %s is ignored in workspace mode", relPath))
	}

	return buildTasks(kilnfile.Tasks, projectPath, kilnfile.Project)
}

// buildTasks converts the DTOs of one file, sorted by name. In a workspace,
// project namespaces task names and local dependencies, and is the default
// module.
func buildTasks(dtos map[string]*TaskDTO, baseDir, project string) ([]domain.TaskDefinition, error) {
	defs := make([]domain.TaskDefinition, 0, len(dtos))
	for _, name := range slices.Sorted(maps.Keys(dtos)) {
		if err := validateTaskName(name); err != nil {
			return nil, err
		}
		dto := dtoOf(dtos, name)

		kind, err := parseKind(dto.Kind)
		if err != nil {
			return nil, zerr.With(err, "task", name)
		}

		id := name
		module := dto.Module
		if project != "" {
			id = project + ":" + name
			if module == "" {
				module = project
			}
		}

		defs = append(defs, domain.TaskDefinition{
			ID:          domain.NewTaskID(id),
			Command:     dto.Cmd,
			Inputs:      absolutePaths(baseDir, dto.Input),
			Targets:     absolutePaths(baseDir, dto.Target),
			Exclude:     absolutePaths(baseDir, dto.Exclude),
			DependsOn:   domain.NewTaskIDs(namespaceDependencies(project, dto.DependsOn)),
			Environment: dto.Environment,
			WorkingDir:  resolvePath(baseDir, dto.WorkingDir),
			Metadata: domain.TaskMetadata{
				Module:   module,
				Platform: dto.Platform,
				Variant:  dto.Variant,
				Kind:     kind,
			},
		})
	}
	return defs, nil
}

// dtoOf returns the DTO for name. An empty task body decodes as nil.
func dtoOf(dtos map[string]*TaskDTO, name string) *TaskDTO {
	if dto := dtos[name]; dto != nil {
		return dto
	}
	return &TaskDTO{}
}

func namespaceDependencies(project string, deps []string) []string {
	if project == "" {
		return deps
	}
	namespaced := make([]string, 0, len(deps))
	for _, dep := range deps {
		if strings.Contains(dep, ":") {
			namespaced = append(namespaced, dep)
		} else {
			namespaced = append(namespaced, project+":"+dep)
		}
	}
	return namespaced
}

// absolutePaths resolves paths against baseDir, sorted and without duplicates.
func absolutePaths(baseDir string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	res := make([]string, len(paths))
	for i, p := range paths {
		res[i] = resolvePath(baseDir, p)
	}
	slices.Sort(res)
	return slices.Compact(res)
}

// resolvePath returns p when absolute, otherwise p joined to baseDir.
// An empty p resolves to baseDir.
func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(baseDir, p))
}

func resolveRoot(configPath, configuredRoot string) string {
	return resolvePath(filepath.Dir(configPath), configuredRoot)
}

func (l *Loader) readYAML(configPath string, target any) error {
	data, err := l.FS.ReadFile(configPath)
	if err != nil {
		return zerr.With(fmt.Errorf("%w: %w", domain.ErrConfigReadFailed, err), "path", configPath)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return zerr.With(fmt.Errorf("%w: %w", domain.ErrConfigParseFailed, err), "path", configPath)
	}
	return nil
}

func (l *Loader) warn(msg string) {
	if l.Logger != nil {
		l.Logger.Warn(msg)
	}
}

func validateProjectName(name, relPath string) error {
	if name == "" {
		return domain.Tag(domain.ErrMissingProjectName, "directory", relPath)
	}
	if !validProjectNameRegex.MatchString(name) {
		err := domain.Tag(domain.ErrInvalidProjectName, "project_name", name)
		return zerr.With(err, "directory", relPath)
	}
	return nil
}

// validateTaskName rejects the reserved name "all" and names with
// characters outside [a-zA-Z0-9_.-].
func validateTaskName(name string) error {
	if name == "all" {
		return domain.Tag(domain.ErrReservedTaskName, "task_name", name)
	}
	if !validTaskNameRegex.MatchString(name) {
		return domain.Tag(domain.ErrInvalidTaskName, "task_name", name)
	}
	return nil
}

func parseKind(kind string) (domain.TaskKind, error) {
	switch k := domain.TaskKind(kind); k {
	case "", domain.KindBuild, domain.KindTest, domain.KindRun:
		return k, nil
	default:
		return "", domain.Tag(domain.ErrInvalidTaskKind, "kind", kind)
	}
}
