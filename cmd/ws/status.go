package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/report"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/scheduler"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tickets grouped by phase with a summary",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		doc, err := snapshot(cmd.Context())
		if err != nil {
			return err
		}
		r := report.Build(doc, scope)
		if jsonOutput {
			return r.WriteJSON(cmd.OutOrStdout())
		}
		r.Render(cmd.OutOrStdout())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one ticket",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		doc, err := snapshot(cmd.Context())
		if err != nil {
			return err
		}
		t := doc.Tickets[id]
		if jsonOutput {
			return outputJSON(cmd, t)
		}
		printTicket(cmd, doc, t)
		return nil
	},
}

func printTicket(cmd *cobra.Command, doc *types.Document, t *types.Ticket) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold).SprintFunc()
	list := func(ids []string) string {
		if len(ids) == 0 {
			return "--"
		}
		return strings.Join(ids, ", ")
	}
	orNone := func(s string) string {
		if s == "" {
			return "--"
		}
		return s
	}

	fmt.Fprintf(out, "%s: %s\n", bold(t.ID), t.Summary)
	fmt.Fprintf(out, "Priority:   %s\n", t.Priority)
	fmt.Fprintf(out, "Area:       %s\n", orNone(t.Area))
	fmt.Fprintf(out, "Workstream: %s\n", orNone(t.Workstream))
	fmt.Fprintf(out, "Phase:      %d\n", t.Phase)
	fmt.Fprintf(out, "Blocked by: %s\n", list(t.BlockedBy))
	fmt.Fprintf(out, "Blocks:     %s\n", list(t.Blocks))
	if unmet := scheduler.Unmet(doc, t); len(unmet) > 0 && !t.Build.Status.IsTerminal() {
		fmt.Fprintf(out, "Waiting on: %s\n", strings.Join(unmet, ", "))
	}

	fmt.Fprintf(out, "\n%s\n", bold("Plan"))
	fmt.Fprintf(out, "  Status:   %s\n", t.Plan.Status)
	if t.Plan.ApprovedAt != nil {
		fmt.Fprintf(out, "  Approved: %s\n", t.Plan.ApprovedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "  Artifact: %s\n", orNone(t.Plan.Artifact))

	fmt.Fprintf(out, "\n%s\n", bold("Build"))
	fmt.Fprintf(out, "  Status:   %s\n", t.Build.Status)
	fmt.Fprintf(out, "  Branch:   %s\n", orNone(t.BranchName()))
	fmt.Fprintf(out, "  Retries:  %d\n", t.Build.RetryCount)
	if t.Build.LastError != "" {
		fmt.Fprintf(out, "  Error:    %s\n", t.Build.LastError)
	}

	fmt.Fprintf(out, "\n%s\n", bold("Pull request"))
	fmt.Fprintf(out, "  Status:   %s\n", t.PR.Status)
	fmt.Fprintf(out, "  URL:      %s\n", orNone(t.PRURL()))
}

// nextPayload is the machine-readable answer of "ws next".
type nextPayload struct {
	Ticket    string         `json:"ticket"`
	Summary   string         `json:"summary"`
	Priority  types.Priority `json:"priority"`
	Phase     int            `json:"phase"`
	BlockedBy []string       `json:"blocked_by"`
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next buildable ticket as JSON",
	Long: `Print the first buildable ticket in (phase, id) order: plan approved,
build pending and every predecessor completed. Exits 1 when nothing is
buildable.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		doc, err := snapshot(cmd.Context())
		if err != nil {
			return err
		}
		t := scheduler.Next(doc, scope)
		if t == nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "No buildable tickets.")
			if blocked := scheduler.Blocked(doc, scope); len(blocked) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d tickets are waiting on predecessors.\n", len(blocked))
			}
			return silentExit(exitNoWork)
		}
		return outputJSON(cmd, nextPayload{
			Ticket:    t.ID,
			Summary:   t.Summary,
			Priority:  t.Priority,
			Phase:     t.Phase,
			BlockedBy: t.BlockedBy,
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, showCmd, nextCmd)
}
