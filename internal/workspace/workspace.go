// Package workspace locates the .claude/workstreams directory that holds a
// project's ticket store, metadata and plan artifacts.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/configfile"
)

// DirName is the workspace directory relative to a project root.
var DirName = filepath.Join(".claude", "workstreams")

// Well-known entries inside the workspace directory.
const (
	PlansDirName   = "plans"
	LogsDirName    = "logs"
	ConfigFileName = "config.yaml"
)

// EnvDir overrides discovery with an explicit workspace directory.
const EnvDir = "WS_DIR"

// FindDir returns the workspace directory: $WS_DIR if set, otherwise the
// nearest .claude/workstreams in the current directory or its ancestors.
// Returns "" if none is found.
func FindDir() string {
	if dir := os.Getenv(EnvDir); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return findDirFrom(cwd)
}

func findDirFrom(start string) string {
	for dir := start; ; {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// DefaultDir returns where a new workspace is created: $WS_DIR or
// .claude/workstreams under the current directory.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return filepath.Abs(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return filepath.Join(cwd, DirName), nil
}

// Location is a resolved workspace: its directory plus the store it uses.
type Location struct {
	Dir       string
	Backend   string
	StorePath string

	explicitStore bool // StorePath came from --db
}

// Resolve determines the store to open. storeOverride (the --db flag) wins;
// otherwise the discovered workspace's metadata.json decides, and without a
// workspace the default directory is used.
func Resolve(storeOverride, backendOverride string) (*Location, error) {
	dir := FindDir()
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}

	cfg, err := configfile.Load(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = configfile.DefaultConfig(backendOverride)
	}

	loc := &Location{Dir: dir, Backend: cfg.Backend, StorePath: cfg.StorePath(dir)}
	if storeOverride != "" {
		abs, err := filepath.Abs(storeOverride)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve store path: %w", err)
		}
		loc.StorePath = abs
		loc.Backend = backendOverride
		loc.explicitStore = true
	}
	return loc, nil
}

// PlansDir returns the directory where plan artifacts are written.
func (l *Location) PlansDir() string {
	return filepath.Join(l.Dir, PlansDirName)
}

// PlanPath returns the artifact path for a ticket's plan.
func (l *Location) PlanPath(id string) string {
	return filepath.Join(l.PlansDir(), id+".md")
}

// LogPath returns the default run-loop log file.
func (l *Location) LogPath() string {
	return filepath.Join(l.Dir, LogsDirName, "run.log")
}

// Init creates the workspace directory, plans directory and metadata.json.
// Existing metadata is kept.
func (l *Location) Init() (*configfile.Config, error) {
	if err := os.MkdirAll(l.PlansDir(), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	cfg, err := configfile.Load(l.Dir)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	cfg = configfile.DefaultConfig(l.Backend)
	if err := cfg.Save(l.Dir); err != nil {
		return nil, err
	}
	if !l.explicitStore {
		l.Backend = cfg.Backend
		l.StorePath = cfg.StorePath(l.Dir)
	}
	return cfg, nil
}
