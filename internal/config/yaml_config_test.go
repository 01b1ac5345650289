package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetYamlConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws", "config.yaml")

	if err := SetYamlConfig(path, "build.max-parallel", "4"); err != nil {
		t.Fatalf("SetYamlConfig failed: %v", err)
	}
	if err := SetYamlConfig(path, "build.pacing", "conservative"); err != nil {
		t.Fatalf("SetYamlConfig failed: %v", err)
	}
	if err := SetYamlConfig(path, "json", "1"); err != nil {
		t.Fatalf("SetYamlConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "build:\n  max-parallel: 4\n  pacing: conservative\njson: true\n"
	if string(data) != want {
		t.Errorf("config.yaml =\n%s\nwant\n%s", data, want)
	}

	got, err := GetYamlConfig(path, "build.pacing")
	if err != nil || got != "conservative" {
		t.Errorf("GetYamlConfig(build.pacing) = %q, %v", got, err)
	}
	got, err = GetYamlConfig(path, "plan.model")
	if err != nil || got != "" {
		t.Errorf("GetYamlConfig(plan.model) = %q, %v; want empty", got, err)
	}
}

func TestSetYamlConfigPreservesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "# workstream settings\nbuild:\n  max-retries: 5 # generous\nplan:\n  provider: command\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := SetYamlConfig(path, "build.max-retries", "2"); err != nil {
		t.Fatalf("SetYamlConfig failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"# workstream settings", "max-retries: 2", "# generous", "provider: command"} {
		if !strings.Contains(out, want) {
			t.Errorf("config.yaml missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "max-retries: 5") {
		t.Errorf("old value kept:\n%s", out)
	}
}

func TestSetYamlConfigRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	tests := []struct {
		key, value string
	}{
		{"unknown.key", "x"},
		{"build.max-parallel", "0"},
		{"build.max-parallel", "-1"},
		{"build.max-retries", "many"},
		{"build.ticket-timeout", "soon"},
		{"build.pacing", "fast"},
		{"backend", "postgres"},
		{"plan.provider", "oracle"},
		{"json", "maybe"},
	}
	for _, tt := range tests {
		if err := SetYamlConfig(path, tt.key, tt.value); err == nil {
			t.Errorf("SetYamlConfig(%q, %q) expected error", tt.key, tt.value)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected values must not create the file")
	}
}

func TestKnownKeysSorted(t *testing.T) {
	keys := KnownKeys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("KnownKeys not sorted at %d: %v", i, keys)
		}
	}
}
