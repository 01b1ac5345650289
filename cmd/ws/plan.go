package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/orchestrator"
)

var planCmd = &cobra.Command{
	Use:   "plan --all",
	Short: "Run the planner for every plannable ticket",
	Long: `Plan every ticket whose plan is pending and whose predecessors have all
completed. Plans run at most build.max-parallel at a time and stay in_progress
until approved; a failed plan goes back to pending.

The planner is plan.command (a shell command that writes $WS_PLAN_PATH) or,
with plan.provider=anthropic, the Anthropic Messages API.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		if all, _ := cmd.Flags().GetBool("all"); !all {
			return usageError(errors.New("plan requires --all"))
		}
		planner, err := newPlanner(config.GetPlanSettings())
		if err != nil {
			return err
		}
		orch := orchestrator.New(store, nil, planner, orchestratorOptions(config.GetBuildSettings(), nil))
		summary, err := orch.PlanAll(cmd.Context(), scope)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(cmd, map[string]any{
				"planned": nonNil(summary.Planned),
				"failed":  errorStrings(summary.Failed),
				"errors":  errorStrings(summary.Errors),
			})
		}
		out := cmd.OutOrStdout()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		if len(summary.Planned)+len(summary.Failed)+len(summary.Errors) == 0 {
			fmt.Fprintln(out, "No plannable tickets.")
			return nil
		}
		for _, id := range summary.Planned {
			fmt.Fprintf(out, "%s %s planned, awaiting approval\n", green("✓"), id)
		}
		for _, id := range sortedKeys(summary.Failed) {
			fmt.Fprintf(out, "%s %s: %v\n", red("✗"), id, summary.Failed[id])
		}
		for _, id := range sortedKeys(summary.Errors) {
			fmt.Fprintf(out, "%s %s: %v\n", red("✗"), id, summary.Errors[id])
		}
		if len(summary.Errors) > 0 {
			return silentExit(exitNoWork)
		}
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve [id...]",
	Short: "Approve plans by id, or every produced plan with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) > 0) {
			return usageError(errors.New("approve takes ticket ids or --all, not both"))
		}
		orch := orchestrator.New(store, nil, nil, orchestrator.Options{})

		var approved []string
		if all {
			ids, err := orch.ApproveAll(ctx, scope)
			if err != nil {
				return err
			}
			approved = ids
		} else {
			ids, err := resolveIDs(ctx, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := orch.Approve(ctx, id); err != nil {
					return err
				}
				approved = append(approved, id)
			}
		}

		if jsonOutput {
			return outputJSON(cmd, map[string][]string{"approved": nonNil(approved)})
		}
		if len(approved) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plans awaiting approval.")
			return nil
		}
		green := color.New(color.FgGreen).SprintFunc()
		for _, id := range approved {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s approved\n", green("✓"), id)
		}
		return nil
	},
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func errorStrings(m map[string]error) map[string]string {
	out := make(map[string]string, len(m))
	for k, err := range m {
		out[k] = err.Error()
	}
	return out
}

func init() {
	planCmd.Flags().Bool("all", false, "Plan every plannable ticket")
	approveCmd.Flags().Bool("all", false, "Approve every plan that has been produced")
	rootCmd.AddCommand(planCmd, approveCmd)
}
