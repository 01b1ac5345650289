package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

var (
	// Version is the current version of ws (overridden by ldflags at build time)
	Version = "0.4.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jsonOutput {
			return outputJSON(cmd, map[string]string{
				"version":        Version,
				"build":          Build,
				"schema_version": types.SchemaVersion,
			})
		}
		printVersion(cmd)
		return nil
	},
}

func printVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "ws version %s (%s)\n", Version, Build)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
