package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/source"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

var createCmd = &cobra.Command{
	Use:   "create <source>",
	Short: "Create tickets from a markdown or YAML source document",
	Long: `Parse a source document and add its tickets to the store in one batch.

Markdown sources use "## PROJ-101: Summary" headings followed by optional
"priority:", "blocked_by: [..]", "area:" and "workstream:" lines. Without such
headings every section becomes a ticket. Files ending in .yaml or .yml list
tickets explicitly.

Either every ticket is created or none is: duplicate ids, unknown blocked_by
references and dependency cycles reject the whole batch.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tickets, err := source.ParseFile(args[0])
		if err != nil {
			return err
		}
		if err := store.Init(ctx); err != nil {
			return err
		}
		if err := store.CreateBatch(ctx, tickets); err != nil {
			return err
		}

		doc, err := snapshot(ctx)
		if err != nil {
			return err
		}
		created := make([]*types.Ticket, 0, len(tickets))
		for _, t := range tickets {
			created = append(created, doc.Tickets[t.ID])
		}
		types.SortTickets(created)

		if jsonOutput {
			return outputJSON(cmd, created)
		}
		green := color.New(color.FgGreen).SprintFunc()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Created %d tickets from %s\n", green("✓"), len(created), args[0])
		for _, t := range created {
			deps := ""
			if len(t.BlockedBy) > 0 {
				deps = fmt.Sprintf(" (blocked by: %s)", strings.Join(t.BlockedBy, ", "))
			}
			fmt.Fprintf(out, "  [phase %d] %s: %s%s\n", t.Phase, t.ID, t.Summary, deps)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
