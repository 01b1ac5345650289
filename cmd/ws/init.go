package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/configfile"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/factory"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the workspace directory and an empty ticket store",
	Long: `Create .claude/workstreams/ in the current directory (or $WS_DIR) with
metadata.json, a plans/ directory and an empty store. Running init again keeps
the existing store.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		backend, _ := cmd.Flags().GetString("backend")
		quiet, _ := cmd.Flags().GetBool("quiet")
		if backend == "" {
			backend = backendOverride()
		}
		switch backend {
		case "", configfile.BackendJSON, configfile.BackendSQLite:
		default:
			return usageError(fmt.Errorf("unknown backend %q (valid: %s, %s)", backend, configfile.BackendJSON, configfile.BackendSQLite))
		}

		l, err := workspace.Resolve(dbPath, backend)
		if err != nil {
			return err
		}
		if _, err := l.Init(); err != nil {
			return err
		}
		s, err := factory.New(l.Backend, l.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = s.Close() }()
		if err := s.Init(cmd.Context()); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}

		if jsonOutput {
			return outputJSON(cmd, map[string]string{
				"dir":     l.Dir,
				"backend": l.Backend,
				"store":   l.StorePath,
			})
		}
		if !quiet {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(cmd.OutOrStdout(), "%s Initialized workspace in %s\n", green("✓"), l.Dir)
			fmt.Fprintf(cmd.OutOrStdout(), "  Backend: %s\n  Store:   %s\n", l.Backend, l.StorePath)
			fmt.Fprintf(cmd.OutOrStdout(), "\nNext: ws create <source.md|source.yaml>\n")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().String("backend", "", "Storage backend: json or sqlite (default: json)")
	initCmd.Flags().BoolP("quiet", "q", false, "Suppress output")
	rootCmd.AddCommand(initCmd)
}
