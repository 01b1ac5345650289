package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/debug"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/factory"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/utils"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/workspace"
)

var (
	dbPath     string
	actor      string
	jsonOutput bool
	scope      string
	verbose    bool

	store *storage.Store
	loc   *workspace.Location
)

// Commands that never touch the ticket store.
var noStoreCommands = []string{
	"bash",
	"completion",
	"config",
	"fish",
	"help",
	"init",
	"powershell",
	"version",
	"zsh",
}

func init() {
	// Initialize viper configuration
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Store path (default: auto-discover .claude/workstreams)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name recorded in run logs (default: $WS_ACTOR or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&scope, "scope", "", "Restrict to one workstream")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log scheduler decisions to stderr")

	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
}

var rootCmd = &cobra.Command{
	Use:           "ws",
	Short:         "ws - Dependency-aware ticket scheduler",
	Long:          `Plans, builds and tracks tickets in dependency order with bounded parallelism, retries and escalation.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion(cmd)
			return nil
		}
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Priority: flags > viper (config file + env vars) > defaults
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if !cmd.Flags().Changed("db") && dbPath == "" {
			dbPath = config.GetString("db")
		}
		if !cmd.Flags().Changed("actor") && actor == "" {
			actor = config.GetString("actor")
		}
		if actor == "" {
			if user := os.Getenv("USER"); user != "" {
				actor = user
			} else {
				actor = "unknown"
			}
		}
		if verbose {
			debug.SetEnabled(true)
		}

		if !needsStore(cmd) {
			return nil
		}

		var err error
		loc, err = workspace.Resolve(dbPath, backendOverride())
		if err != nil {
			return err
		}
		debug.Logf("using %s store at %s (actor %s)", loc.Backend, loc.StorePath, actor)
		store, err = factory.New(loc.Backend, loc.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
	},
}

// needsStore reports whether cmd or one of its parents is a command that
// never opens the store (config get/set/list run under "config").
func needsStore(cmd *cobra.Command) bool {
	if !cmd.HasParent() {
		return false
	}
	for c := cmd; c.HasParent(); c = c.Parent() {
		if slices.Contains(noStoreCommands, c.Name()) {
			return false
		}
	}
	return true
}

// backendOverride returns the configured backend only when the user set one,
// so an explicit --db path can still be inferred from its extension.
func backendOverride() string {
	if config.IsSet("backend") {
		return config.GetString("backend")
	}
	return ""
}

// snapshot loads the whole document, turning a missing store into a hint.
func snapshot(ctx context.Context) (*types.Document, error) {
	doc, err := store.Snapshot(ctx)
	if errors.Is(err, storage.ErrNotInitialized) {
		return nil, fmt.Errorf("%w at %s\nHint: run 'ws init' and 'ws create <source>' first", err, store.Path())
	}
	return doc, err
}

// resolveID expands a partial id ("101") against the current store.
func resolveID(ctx context.Context, input string) (string, error) {
	doc, err := snapshot(ctx)
	if err != nil {
		return "", err
	}
	id, err := utils.ResolvePartialID(doc, input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	}
	return id, nil
}

// resolveIDs expands several partial ids against one snapshot.
func resolveIDs(ctx context.Context, inputs []string) ([]string, error) {
	doc, err := snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := utils.ResolvePartialIDs(doc, inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrNotFound, err)
	}
	return ids, nil
}

// outputJSON writes v as indented JSON to the command's stdout.
func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

func main() {
	// Interrupts cancel in-flight builds; the orchestrator records them before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}
