package storage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/graph"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Names of the document checks run by Validate.
const (
	CheckCycles   = "cycles"
	CheckDangling = "dangling"
	CheckBlocks   = "blocks"
	CheckPhases   = "phases"
	CheckOrphaned = "orphaned"
	CheckFields   = "fields"
)

// Checks lists every check in the order Validate runs them.
var Checks = []string{CheckCycles, CheckDangling, CheckBlocks, CheckPhases, CheckOrphaned, CheckFields}

// Problem is one invariant violation found in a stored document.
type Problem struct {
	Check    string `json:"check"`
	TicketID string `json:"ticket,omitempty"`
	Detail   string `json:"detail"`
}

func (p Problem) String() string {
	if p.TicketID == "" {
		return fmt.Sprintf("%s: %s", p.Check, p.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", p.Check, p.TicketID, p.Detail)
}

// Validate re-checks every invariant the store maintains on a document that
// may have been edited by hand. It never modifies doc. Problems are ordered by
// check, then ticket id.
func Validate(doc *types.Document) []Problem {
	var problems []Problem
	add := func(check, id, format string, args ...any) {
		problems = append(problems, Problem{Check: check, TicketID: id, Detail: fmt.Sprintf(format, args...)})
	}
	ids := doc.IDs()
	edges := graph.Edges(doc.Edges())

	if cycle := graph.DetectCycle(edges); cycle != nil {
		add(CheckCycles, "", "dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	for _, id := range ids {
		for _, dep := range doc.Tickets[id].BlockedBy {
			if _, ok := doc.Tickets[dep]; !ok {
				add(CheckDangling, id, "blocked_by references unknown ticket %s", dep)
			}
		}
	}

	transpose := graph.Transpose(edges)
	for _, id := range ids {
		want := transpose[id]
		got := slices.Clone(doc.Tickets[id].Blocks)
		slices.Sort(got)
		if !slices.Equal(want, got) {
			add(CheckBlocks, id, "blocks is [%s], want [%s]", strings.Join(got, ", "), strings.Join(want, ", "))
		}
	}

	// Phases are meaningless on a cyclic graph.
	if graph.DetectCycle(edges) == nil {
		phases := graph.ComputePhases(edges)
		for _, id := range ids {
			if got := doc.Tickets[id].Phase; got != phases[id] {
				add(CheckPhases, id, "phase is %d, want %d", got, phases[id])
			}
		}
	}

	for _, id := range ids {
		t := doc.Tickets[id]
		if t.Build.Status != types.BuildInProgress {
			continue
		}
		for _, dep := range t.BlockedBy {
			if p, ok := doc.Tickets[dep]; ok && p.Build.Status != types.BuildCompleted {
				add(CheckOrphaned, id, "build in_progress while predecessor %s is %s", dep, p.Build.Status)
			}
		}
	}

	for _, id := range ids {
		t := doc.Tickets[id]
		if t.ID != id {
			add(CheckFields, id, "stored under key %s but id is %s", id, t.ID)
		}
		if err := t.Validate(); err != nil {
			add(CheckFields, id, "%v", err)
		}
	}
	return problems
}
