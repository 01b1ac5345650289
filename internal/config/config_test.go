package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// envSnapshot clears WS_ environment variables for the duration of the test.
func envSnapshot(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "WS_") {
			key := strings.SplitN(env, "=", 2)[0]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

// isolate runs the test from an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	envSnapshot(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	t.Cleanup(ResetForTesting)
	return dir
}

func TestDefaults(t *testing.T) {
	isolate(t)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want none", ConfigFileUsed())
	}

	build := GetBuildSettings()
	want := BuildSettings{
		MaxParallel:          3,
		MaxRetries:           3,
		TicketTimeout:        30 * time.Minute,
		TimeBudget:           0,
		Pacing:               PacingNormal,
		ConservativeInterval: time.Minute,
	}
	if build != want {
		t.Errorf("GetBuildSettings() = %+v, want %+v", build, want)
	}

	plan := GetPlanSettings()
	if plan.Provider != PlanProviderCommand || plan.MaxTokens != 4096 || plan.Model == "" {
		t.Errorf("GetPlanSettings() = %+v", plan)
	}

	run := GetRunSettings()
	if run.Interval != 5*time.Minute || run.LogMaxSizeMB != 10 || run.LogMaxBackups != 3 || run.LogMaxAgeDays != 7 {
		t.Errorf("GetRunSettings() = %+v", run)
	}
	if GetBool("json") {
		t.Error("json should default to false")
	}
	if GetString("backend") != "json" {
		t.Errorf("backend = %q, want json", GetString("backend"))
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("WS_JSON", "true")
	t.Setenv("WS_BUILD_MAX_PARALLEL", "7")
	t.Setenv("WS_BUILD_TICKET_TIMEOUT", "90s")
	t.Setenv("WS_PLAN_PROVIDER", "anthropic")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if !GetBool("json") {
		t.Error("WS_JSON not applied")
	}
	if got := GetInt("build.max-parallel"); got != 7 {
		t.Errorf("build.max-parallel = %d, want 7", got)
	}
	if got := GetDuration("build.ticket-timeout"); got != 90*time.Second {
		t.Errorf("build.ticket-timeout = %v, want 90s", got)
	}
	if got := GetString("plan.provider"); got != PlanProviderAnthropic {
		t.Errorf("plan.provider = %q", got)
	}
	if !IsSet("build.max-parallel") {
		t.Error("IsSet(build.max-parallel) = false with env var present")
	}
	if IsSet("build.max-retries") {
		t.Error("IsSet(build.max-retries) = true for a default")
	}
}

func TestConfigFileWalkUp(t *testing.T) {
	dir := isolate(t)
	wsDir := filepath.Join(dir, ".claude", "workstreams")
	if err := os.MkdirAll(wsDir, 0o750); err != nil {
		t.Fatal(err)
	}
	content := "build:\n  max-parallel: 5\n  pacing: conservative\nrun:\n  interval: 2m\n"
	if err := os.WriteFile(filepath.Join(wsDir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "src", "pkg")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if !strings.HasSuffix(ConfigFileUsed(), filepath.Join(".claude", "workstreams", "config.yaml")) {
		t.Errorf("ConfigFileUsed() = %q", ConfigFileUsed())
	}
	build := GetBuildSettings()
	if build.MaxParallel != 5 || build.Pacing != PacingConservative {
		t.Errorf("GetBuildSettings() = %+v", build)
	}
	if build.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", build.MaxRetries)
	}
	if got := GetRunSettings().Interval; got != 2*time.Minute {
		t.Errorf("run.interval = %v, want 2m", got)
	}
	if !IsSet("build.pacing") {
		t.Error("IsSet(build.pacing) = false for a config file key")
	}

	// Environment beats the file.
	t.Setenv("WS_BUILD_MAX_PARALLEL", "9")
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	if got := GetInt("build.max-parallel"); got != 9 {
		t.Errorf("build.max-parallel = %d, want 9", got)
	}
}

func TestUninitializedGetters(t *testing.T) {
	ResetForTesting()
	if GetString("backend") != "" || GetInt("build.max-parallel") != 0 || GetBool("json") || GetDuration("run.interval") != 0 {
		t.Error("getters should return zero values before Initialize")
	}
	Set("json", true) // must not panic
	if len(AllSettings()) != 0 {
		t.Error("AllSettings() should be empty before Initialize")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"json":                 "WS_JSON",
		"build.max-parallel":   "WS_BUILD_MAX_PARALLEL",
		"plan.command":         "WS_PLAN_COMMAND",
		"run.log-max-backups":  "WS_RUN_LOG_MAX_BACKUPS",
		"build.ticket-timeout": "WS_BUILD_TICKET_TIMEOUT",
	}
	for key, want := range tests {
		if got := EnvKey(key); got != want {
			t.Errorf("EnvKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestValidatePacing(t *testing.T) {
	if err := ValidatePacing("normal"); err != nil {
		t.Errorf("normal: %v", err)
	}
	if err := ValidatePacing("conservative"); err != nil {
		t.Errorf("conservative: %v", err)
	}
	if err := ValidatePacing("turbo"); err == nil {
		t.Error("expected error for unknown pacing")
	}
}
