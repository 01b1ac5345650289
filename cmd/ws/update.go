package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

var dependsCmd = &cobra.Command{
	Use:   "depends <id> <depends_on>",
	Short: "Record that a ticket is blocked by another",
	Long: `Add a blocked_by edge and recompute phases. An edge that would close a
dependency cycle is rejected and the store is left unchanged.`,
	Args: exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		dependsOn, err := resolveID(ctx, args[1])
		if err != nil {
			return err
		}
		if err := store.AddDependency(ctx, id, dependsOn); err != nil {
			return err
		}
		t, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, t)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s blocked by %s (phase %d)\n", green("✓"), id, dependsOn, t.Phase)
		return nil
	},
}

// updateStatuses maps the accepted "ws update" words to build statuses.
var updateStatuses = map[string]types.BuildStatus{
	"pending":     types.BuildPending,
	"in_progress": types.BuildInProgress,
	"done":        types.BuildCompleted,
	"completed":   types.BuildCompleted,
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <status>",
	Short: "Override a ticket's build status (pending, in_progress, done, blocked)",
	Long: `Set build.status directly. "done" marks the build completed. "blocked" is
not a stored status: whether a ticket is blocked is derived from its
predecessors, so "update <id> blocked" only prints a warning.`,
	Args: exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		word := strings.ToLower(args[1])
		if word == "blocked" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s blocked is derived from dependencies; %s was not changed\n", yellow("⚠"), id)
			fmt.Fprintf(cmd.ErrOrStderr(), "  Use 'ws depends %s <id>' to add a predecessor\n", id)
			return nil
		}
		status, ok := updateStatuses[word]
		if !ok {
			return fmt.Errorf("%w: status %q (valid: pending, in_progress, done, blocked)", storage.ErrInvalidValue, args[1])
		}

		var old types.BuildStatus
		err = store.Apply(ctx, id, func(t *types.Ticket) error {
			old = t.Build.Status
			t.Build.Status = status
			return nil
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"id": id, "from": string(old), "to": string(status)})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s -> %s\n", id, old, status)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <id> <field_path> <value>",
	Short: "Set a single ticket field by dotted path",
	Long: `Set one field, e.g. "ws set PROJ-101 plan.artifact plans/PROJ-101.md".
Derived fields (phase, blocks) and dependencies are not writable here;
retry_count can only grow (use 'ws retry --reset' to zero it). Pass "null"
to clear nullable fields.`,
	Args: exactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		if err := store.Update(ctx, id, args[1], args[2]); err != nil {
			return err
		}
		t, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s = %s\n", id, args[1], args[2])
		return nil
	},
}

func init() {
	setCmd.Example = "  ws set PROJ-101 priority high\n  ws set PROJ-101 build.branch null\n\nFields: " + strings.Join(storage.FieldPaths(), ", ")
	rootCmd.AddCommand(dependsCmd, updateCmd, setCmd)
}
