package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/workspace"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write ws settings",
	Long: `Settings come from, highest first: command-line flags, WS_* environment
variables (WS_BUILD_MAX_PARALLEL for build.max-parallel), the workspace
.claude/workstreams/config.yaml, then ~/.config/ws/config.yaml.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to config.yaml",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		path, err := configFilePath(global)
		if err != nil {
			return err
		}
		if err := config.SetYamlConfig(path, args[0], args[1]); err != nil {
			return usageError(err)
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"key": args[0], "value": args[1], "file": path})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := knownKey(key); err != nil {
			return err
		}
		value := fmt.Sprint(config.Get(key))
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"key": key, "value": value, "source": configSource(key)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its effective value and source",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		keys := config.KnownKeys()
		if jsonOutput {
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k] = fmt.Sprint(config.Get(k))
			}
			return outputJSON(cmd, out)
		}
		if used := config.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", used)
		}
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s %-20v (%s)\n", k, config.Get(k), configSource(k))
		}
		return nil
	},
}

func knownKey(key string) error {
	for _, k := range config.KnownKeys() {
		if k == key {
			return nil
		}
	}
	return usageError(fmt.Errorf("unknown config key %q", key))
}

func configSource(key string) string {
	if _, ok := os.LookupEnv(config.EnvKey(key)); ok {
		return "env " + config.EnvKey(key)
	}
	if config.IsSet(key) {
		return "config file"
	}
	return "default"
}

// configFilePath returns the workspace config.yaml, or the user one with global.
func configFilePath(global bool) (string, error) {
	if global {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("no user config directory: %w", err)
		}
		return filepath.Join(dir, "ws", workspace.ConfigFileName), nil
	}
	dir := workspace.FindDir()
	if dir == "" {
		var err error
		if dir, err = workspace.DefaultDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, workspace.ConfigFileName), nil
}

func init() {
	configSetCmd.Flags().Bool("global", false, "Write ~/.config/ws/config.yaml instead of the workspace file")
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
