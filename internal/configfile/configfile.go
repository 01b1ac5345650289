// Package configfile reads and writes the workspace metadata.json, which
// records which storage backend a workspace uses and where its store lives.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ConfigFileName = "metadata.json"

// Backend names
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Default store filenames per backend
const (
	DefaultJSONStore   = "status.json"
	DefaultSQLiteStore = "workstream.db"
)

type Config struct {
	Backend string `json:"backend"`
	Store   string `json:"store"`
}

// DefaultConfig returns the metadata for a new workspace using backend.
// An empty or unknown backend falls back to the JSON document.
func DefaultConfig(backend string) *Config {
	if backend == BackendSQLite {
		return &Config{Backend: BackendSQLite, Store: DefaultSQLiteStore}
	}
	return &Config{Backend: BackendJSON, Store: DefaultJSONStore}
}

func ConfigPath(wsDir string) string {
	return filepath.Join(wsDir, ConfigFileName)
}

// Load reads metadata.json from wsDir. A missing file returns (nil, nil).
func Load(wsDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(wsDir)) // #nosec G304 - controlled path from workspace discovery
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendJSON
	}
	if cfg.Store == "" {
		cfg.Store = DefaultConfig(cfg.Backend).Store
	}
	return &cfg, nil
}

func (c *Config) Save(wsDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(wsDir), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// StorePath returns the absolute store location inside wsDir.
// An absolute Store value is returned unchanged.
func (c *Config) StorePath(wsDir string) string {
	if filepath.IsAbs(c.Store) {
		return c.Store
	}
	return filepath.Join(wsDir, c.Store)
}
