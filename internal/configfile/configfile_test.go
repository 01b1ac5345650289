package configfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	tests := []struct {
		backend   string
		wantBack  string
		wantStore string
	}{
		{"", BackendJSON, "status.json"},
		{"json", BackendJSON, "status.json"},
		{"sqlite", BackendSQLite, "workstream.db"},
		{"postgres", BackendJSON, "status.json"},
	}
	for _, tt := range tests {
		cfg := DefaultConfig(tt.backend)
		if cfg.Backend != tt.wantBack || cfg.Store != tt.wantStore {
			t.Errorf("DefaultConfig(%q) = %+v, want backend %q store %q", tt.backend, cfg, tt.wantBack, tt.wantStore)
		}
	}
}

func TestLoadSaveRoundtrip(t *testing.T) {
	wsDir := filepath.Join(t.TempDir(), ".claude", "workstreams")
	if err := os.MkdirAll(wsDir, 0o750); err != nil {
		t.Fatalf("failed to create workspace directory: %v", err)
	}

	cfg := DefaultConfig(BackendSQLite)
	if err := cfg.Save(wsDir); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load(wsDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() returned nil config")
	}
	if *loaded != *cfg {
		t.Errorf("Load() = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() returned error for nonexistent config: %v", err)
	}
	if cfg != nil {
		t.Errorf("Load() = %v, want nil for nonexistent config", cfg)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	wsDir := t.TempDir()
	if err := os.WriteFile(ConfigPath(wsDir), []byte(`{"backend": "sqlite"}`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := Load(wsDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store != DefaultSQLiteStore {
		t.Errorf("Store = %q, want %q", cfg.Store, DefaultSQLiteStore)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	wsDir := t.TempDir()
	if err := os.WriteFile(ConfigPath(wsDir), []byte(`{backend`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(wsDir); err == nil {
		t.Error("Load() of invalid JSON succeeded, want error")
	}
}

func TestStorePath(t *testing.T) {
	wsDir := "/home/user/project/.claude/workstreams"
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"relative", &Config{Store: "status.json"}, filepath.Join(wsDir, "status.json")},
		{"absolute", &Config{Store: "/var/ws/status.json"}, "/var/ws/status.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.StorePath(wsDir); got != tt.want {
				t.Errorf("StorePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	wsDir := "/home/user/project/.claude/workstreams"
	got := ConfigPath(wsDir)
	want := filepath.Join(wsDir, "metadata.json")
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}
