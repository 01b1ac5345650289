package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/orchestrator"
)

var buildCmd = &cobra.Command{
	Use:   "build --approved",
	Short: "Build approved tickets in dependency order",
	Long: `Dispatch every buildable ticket (plan approved, build pending, all
predecessors completed) to build.command, at most --max-parallel at a time,
until nothing is buildable or a budget runs out. Failures go back to pending
until build.max-retries is exceeded, then the ticket is escalated.

--pacing conservative runs one build at a time with build.conservative-interval
between dispatches.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		if approved, _ := cmd.Flags().GetBool("approved"); !approved {
			return usageError(errors.New("build requires --approved"))
		}
		bs, err := buildSettingsFromFlags(cmd)
		if err != nil {
			return err
		}
		builder, err := newBuilder(bs)
		if err != nil {
			return err
		}

		orch := orchestrator.New(store, builder, nil, orchestratorOptions(bs, nil))
		summary, runErr := orch.Run(cmd.Context(), scope)
		if jsonOutput {
			if err := outputJSON(cmd, runSummaryJSON(summary)); err != nil {
				return err
			}
		} else {
			printRunSummary(cmd.OutOrStdout(), summary)
		}
		if runErr != nil {
			return fmt.Errorf("build interrupted: %w", runErr)
		}
		if len(summary.Errors) > 0 {
			return silentExit(exitNoWork)
		}
		return nil
	},
}

// buildSettingsFromFlags overlays --pacing and --max-parallel on the config.
func buildSettingsFromFlags(cmd *cobra.Command) (config.BuildSettings, error) {
	bs := config.GetBuildSettings()
	if cmd.Flags().Changed("pacing") {
		bs.Pacing, _ = cmd.Flags().GetString("pacing")
	}
	if cmd.Flags().Changed("max-parallel") {
		bs.MaxParallel, _ = cmd.Flags().GetInt("max-parallel")
	}
	if err := config.ValidatePacing(bs.Pacing); err != nil {
		return bs, usageError(err)
	}
	if bs.MaxParallel < 1 {
		return bs, usageError(fmt.Errorf("max-parallel must be at least 1, got %d", bs.MaxParallel))
	}
	return bs, nil
}

func runSummaryJSON(s *orchestrator.RunSummary) map[string]any {
	return map[string]any{
		"iterations":       s.Iterations,
		"completed":        nonNil(sorted(s.Completed)),
		"retried":          nonNil(sorted(s.Retried)),
		"failed":           nonNil(sorted(s.Failed)),
		"escalated":        nonNil(sorted(s.Escalated)),
		"errors":           errorStrings(s.Errors),
		"budget_exhausted": s.BudgetExhausted,
	}
}

func printRunSummary(w io.Writer, s *orchestrator.RunSummary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if s.Dispatched() == 0 && len(s.Errors) == 0 {
		fmt.Fprintln(w, "No buildable tickets.")
		return
	}
	for _, id := range sorted(s.Completed) {
		fmt.Fprintf(w, "%s %s completed\n", green("✓"), id)
	}
	for _, id := range sorted(s.Retried) {
		fmt.Fprintf(w, "%s %s failed, will retry\n", yellow("⚠"), id)
	}
	for _, id := range sorted(s.Failed) {
		fmt.Fprintf(w, "%s %s interrupted, left failed\n", yellow("⚠"), id)
	}
	for _, id := range sorted(s.Escalated) {
		fmt.Fprintf(w, "%s %s escalated\n", red("✗"), id)
	}
	for _, id := range sortedKeys(s.Errors) {
		fmt.Fprintf(w, "%s %s: %v\n", red("✗"), id, s.Errors[id])
	}
	fmt.Fprintf(w, "\n%d builds in %d rounds", s.Dispatched(), s.Iterations)
	if s.BudgetExhausted {
		fmt.Fprint(w, " (budget exhausted)")
	}
	fmt.Fprintln(w)
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Return a failed or escalated ticket to pending",
	Long: `Put a failed or escalated build back to pending so the next build picks it
up. retry_count is kept, so an escalated ticket escalates again on its next
failure unless --reset zeroes the counter.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reset, _ := cmd.Flags().GetBool("reset")
		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}
		orch := orchestrator.New(store, nil, nil, orchestratorOptions(config.GetBuildSettings(), nil))
		if err := orch.Retry(ctx, id, reset); err != nil {
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
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s (retry_count %d)\n", green("✓"), id, t.Build.Status, t.Build.RetryCount)
		return nil
	},
}

func init() {
	buildCmd.Flags().Bool("approved", false, "Build tickets whose plans are approved")
	buildCmd.Flags().String("pacing", config.PacingNormal, "Dispatch pacing: normal or conservative")
	buildCmd.Flags().Int("max-parallel", orchestrator.DefaultMaxParallel, "Maximum concurrent builds")
	retryCmd.Flags().Bool("reset", false, "Zero retry_count before requeueing")
	rootCmd.AddCommand(buildCmd, retryCmd)
}
