// Package config holds the viper-backed settings for ws: config.yaml in the
// workspace (or the user config dir), WS_* environment variables and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/debug"
)

// Pacing modes for the build loop.
const (
	PacingNormal       = "normal"
	PacingConservative = "conservative"
)

// Planner providers.
const (
	PlanProviderCommand   = "command"
	PlanProviderAnthropic = "anthropic"
)

// EnvPrefix is prepended to every config key to form its environment variable.
const EnvPrefix = "WS"

var v *viper.Viper

// Initialize sets up the viper configuration singleton
// Should be called once at application startup
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .claude/workstreams/config.yaml > ~/.config/ws/config.yaml
	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
	}

	// Environment variables take precedence over config file
	// E.g., WS_JSON, WS_BUILD_MAX_PARALLEL, WS_PLAN_COMMAND
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Global flags
	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("backend", "json")

	// Build loop
	v.SetDefault("build.max-parallel", 3)
	v.SetDefault("build.max-retries", 3)
	v.SetDefault("build.ticket-timeout", "30m")
	v.SetDefault("build.max-iterations", 0)
	v.SetDefault("build.time-budget", "0s")
	v.SetDefault("build.pacing", PacingNormal)
	v.SetDefault("build.conservative-interval", "1m")
	v.SetDefault("build.command", "")

	// Planning
	v.SetDefault("plan.provider", PlanProviderCommand)
	v.SetDefault("plan.command", "")
	v.SetDefault("plan.model", "claude-sonnet-4-5")
	v.SetDefault("plan.max-tokens", 4096)

	// PR refresh
	v.SetDefault("pr.status-command", "")

	// Run loop
	v.SetDefault("run.interval", "5m")
	v.SetDefault("run.log", "")
	v.SetDefault("run.log-max-size", 10) // MB
	v.SetDefault("run.log-max-backups", 3)
	v.SetDefault("run.log-max-age", 7) // days

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}
	return nil
}

// findConfigFile walks up from the working directory looking for
// .claude/workstreams/config.yaml, then tries the user config directory.
// $WS_DIR pins the workspace and skips the walk.
func findConfigFile() string {
	if dir := os.Getenv("WS_DIR"); dir != "" {
		path := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	} else if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			path := filepath.Join(dir, ".claude", "workstreams", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				return path
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(configDir, "ws", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ResetForTesting clears the config state, allowing Initialize() to be called again.
// WARNING: Not thread-safe. Only call from single-threaded test contexts.
func ResetForTesting() {
	v = nil
}

// Get retrieves a configuration value of any type
func Get(key string) any {
	if v == nil {
		return nil
	}
	return v.Get(key)
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// IsSet reports whether key was given by a config file or environment variable.
func IsSet(key string) bool {
	if v == nil {
		return false
	}
	if v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(EnvKey(key))
	return ok
}

// EnvKey returns the environment variable bound to key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Set sets a configuration value (used by flag overrides and tests)
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// ConfigFileUsed returns the path to the active config file
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// BuildSettings are the build-loop knobs after defaults and overrides.
type BuildSettings struct {
	MaxParallel          int
	MaxRetries           int
	TicketTimeout        time.Duration
	MaxIterations        int
	TimeBudget           time.Duration
	Pacing               string
	ConservativeInterval time.Duration
	Command              string
}

// GetBuildSettings reads the build.* keys.
func GetBuildSettings() BuildSettings {
	return BuildSettings{
		MaxParallel:          GetInt("build.max-parallel"),
		MaxRetries:           GetInt("build.max-retries"),
		TicketTimeout:        GetDuration("build.ticket-timeout"),
		MaxIterations:        GetInt("build.max-iterations"),
		TimeBudget:           GetDuration("build.time-budget"),
		Pacing:               GetString("build.pacing"),
		ConservativeInterval: GetDuration("build.conservative-interval"),
		Command:              GetString("build.command"),
	}
}

// PlanSettings are the planning collaborator knobs.
type PlanSettings struct {
	Provider  string
	Command   string
	Model     string
	MaxTokens int
}

// GetPlanSettings reads the plan.* keys.
func GetPlanSettings() PlanSettings {
	return PlanSettings{
		Provider:  GetString("plan.provider"),
		Command:   GetString("plan.command"),
		Model:     GetString("plan.model"),
		MaxTokens: GetInt("plan.max-tokens"),
	}
}

// RunSettings configure the continuous run loop and its log.
type RunSettings struct {
	Interval      time.Duration
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	StatusCommand string
}

// GetRunSettings reads the run.* keys plus the PR status command.
func GetRunSettings() RunSettings {
	return RunSettings{
		Interval:      GetDuration("run.interval"),
		LogPath:       GetString("run.log"),
		LogMaxSizeMB:  GetInt("run.log-max-size"),
		LogMaxBackups: GetInt("run.log-max-backups"),
		LogMaxAgeDays: GetInt("run.log-max-age"),
		StatusCommand: GetString("pr.status-command"),
	}
}

// ValidatePacing reports whether mode is a known pacing mode.
func ValidatePacing(mode string) error {
	switch mode {
	case PacingNormal, PacingConservative:
		return nil
	}
	return fmt.Errorf("invalid pacing %q (valid: %s, %s)", mode, PacingNormal, PacingConservative)
}
