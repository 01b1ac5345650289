package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/orchestrator"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/prmonitor"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/scheduler"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

var prCmd = &cobra.Command{
	Use:   "pr <id>",
	Short: "Record a ticket's pull request",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		url, _ := cmd.Flags().GetString("url")
		status, _ := cmd.Flags().GetString("status")
		if !cmd.Flags().Changed("url") && !cmd.Flags().Changed("status") {
			return usageError(errors.New("pr needs --url and/or --status"))
		}
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		err = store.Apply(ctx, id, func(t *types.Ticket) error {
			if cmd.Flags().Changed("url") {
				if err := storage.SetField(t, "pr.url", url); err != nil {
					return err
				}
				if !cmd.Flags().Changed("status") && t.PRURL() != "" && t.PR.Status == types.PRNone {
					t.PR.Status = types.PROpen
				}
			}
			if cmd.Flags().Changed("status") {
				return storage.SetField(t, "pr.status", strings.ToLower(status))
			}
			return nil
		})
		if err != nil {
			return err
		}
		t, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, t)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s pull request: %s (%s)\n", id, t.PRURL(), t.PR.Status)
		return nil
	},
}

// prCheckResult is the JSON form of "ws pr-check".
type prCheckResult struct {
	Reports   []prmonitor.Report `json:"reports"`
	Refreshed map[string]string  `json:"refreshed,omitempty"`
	Requeued  []string           `json:"requeued"`
	Escalated []string           `json:"escalated"`
}

var prCheckCmd = &cobra.Command{
	Use:   "pr-check",
	Short: "Check pull request merge order and requeue failed builds",
	Long: `Report every open or closed pull request whose predecessor pull requests
have not all merged. Failed builds with retries left go back to pending; those
past build.max-retries are escalated.

--refresh first asks pr.status-command for the live status of every pull
request that has not merged yet.

Exits 1 while escalated tickets remain.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		res, err := prCheck(cmd.Context(), refresh, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := outputJSON(cmd, res); err != nil {
				return err
			}
		} else {
			printPRCheck(cmd.OutOrStdout(), res)
		}
		if len(res.Escalated) > 0 {
			return silentExit(exitNoWork)
		}
		return nil
	},
}

// prCheck refreshes pull request status when asked, requeues failed builds and
// returns the merge readiness report for the current scope.
func prCheck(ctx context.Context, refresh bool, warn io.Writer) (*prCheckResult, error) {
	res := &prCheckResult{Refreshed: map[string]string{}}
	if refresh {
		src, err := newStatusSource(config.GetRunSettings())
		if err != nil {
			return nil, err
		}
		doc, err := snapshot(ctx)
		if err != nil {
			return nil, err
		}
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, r := range prmonitor.Poll(ctx, doc, src) {
			if r.Err != nil {
				fmt.Fprintf(warn, "%s %s: %v\n", yellow("⚠"), r.TicketID, r.Err)
				continue
			}
			if err := store.Update(ctx, r.TicketID, "pr.status", string(r.To)); err != nil {
				return nil, err
			}
			res.Refreshed[r.TicketID] = fmt.Sprintf("%s -> %s", r.From, r.To)
		}
	}

	orch := orchestrator.New(store, nil, nil, orchestratorOptions(config.GetBuildSettings(), nil))
	requeued, _, err := orch.Requeue(ctx, scope)
	if err != nil {
		return nil, err
	}
	res.Requeued = nonNil(requeued)

	doc, err := snapshot(ctx)
	if err != nil {
		return nil, err
	}
	res.Reports = []prmonitor.Report{}
	for _, r := range prmonitor.Check(doc) {
		if scheduler.InScope(doc.Tickets[r.TicketID], scope) {
			res.Reports = append(res.Reports, r)
		}
	}
	res.Escalated = []string{}
	for _, t := range scheduler.Escalated(doc, scope) {
		res.Escalated = append(res.Escalated, t.ID)
	}
	return res, nil
}

func printPRCheck(w io.Writer, res *prCheckResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, id := range sortedStringKeys(res.Refreshed) {
		fmt.Fprintf(w, "Refreshed %s: %s\n", id, res.Refreshed[id])
	}
	if len(res.Reports) == 0 {
		fmt.Fprintln(w, "No pull requests waiting on predecessors.")
	}
	for _, r := range res.Reports {
		if r.Ready {
			fmt.Fprintf(w, "%s %s ready to merge\n", green("✓"), r.TicketID)
			continue
		}
		waiting := make([]string, 0, len(r.Blockers))
		for _, b := range r.Blockers {
			waiting = append(waiting, fmt.Sprintf("%s (%s)", b.ID, b.Status))
		}
		fmt.Fprintf(w, "%s %s blocked by %s\n", yellow("⚠"), r.TicketID, strings.Join(waiting, ", "))
	}
	for _, id := range res.Requeued {
		fmt.Fprintf(w, "Requeued %s\n", id)
	}
	if len(res.Escalated) > 0 {
		fmt.Fprintf(w, "%s Escalated: %s\n", red("✗"), strings.Join(res.Escalated, ", "))
		fmt.Fprintln(w, "  Use 'ws retry <id> --reset' after fixing the cause")
	}
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return sorted(keys)
}

func init() {
	prCmd.Flags().String("url", "", "Pull request URL (\"null\" clears it)")
	prCmd.Flags().String("status", "", "Pull request status: none, open, merged, closed")
	prCheckCmd.Flags().Bool("refresh", false, "Refresh pull request status with pr.status-command first")
	rootCmd.AddCommand(prCmd, prCheckCmd)
}
