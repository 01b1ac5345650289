package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the store's dependency invariants",
	Long: `Re-check every invariant on the stored document, which matters after a
hand edit:
- cycles:   the blocked_by graph is acyclic
- dangling: every blocked_by id exists
- blocks:   blocks is the exact transpose of blocked_by
- phases:   each phase is 1 + the highest predecessor phase
- orphaned: no build is in_progress while a predecessor is incomplete
- fields:   every enum field holds a known value

Exits 2 when any check fails.`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		doc, err := snapshot(cmd.Context())
		if err != nil {
			return err
		}
		problems := storage.Validate(doc)

		if jsonOutput {
			if problems == nil {
				problems = []storage.Problem{}
			}
			if err := outputJSON(cmd, map[string]any{
				"tickets":  len(doc.Tickets),
				"problems": problems,
				"valid":    len(problems) == 0,
			}); err != nil {
				return err
			}
		} else {
			printValidation(cmd, len(doc.Tickets), problems)
		}
		if len(problems) > 0 {
			return silentExit(exitStructural)
		}
		return nil
	},
}

func printValidation(cmd *cobra.Command, tickets int, problems []storage.Problem) {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	byCheck := make(map[string][]storage.Problem)
	for _, p := range problems {
		byCheck[p.Check] = append(byCheck[p.Check], p)
	}
	for _, check := range storage.Checks {
		found := byCheck[check]
		if len(found) == 0 {
			fmt.Fprintf(out, "%s %s\n", green("✓"), check)
			continue
		}
		fmt.Fprintf(out, "%s %s: %d problems\n", red("✗"), check, len(found))
		for _, p := range found {
			if p.TicketID != "" {
				fmt.Fprintf(out, "    %s: %s\n", p.TicketID, p.Detail)
			} else {
				fmt.Fprintf(out, "    %s\n", p.Detail)
			}
		}
	}
	fmt.Fprintf(out, "\n%d tickets, %d problems\n", tickets, len(problems))
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
