// Package scheduler answers readiness queries over a store snapshot. Every
// function is pure: it reads the document and never mutates it.
package scheduler

import (
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// BlockedTicket is a ticket waiting on predecessors that have not completed.
// "Blocked" is always derived from the graph; it is never stored.
type BlockedTicket struct {
	*types.Ticket
	BlockedByCount int      `json:"blocked_by_count"`
	Waiting        []string `json:"waiting_on"`
}

// InScope reports whether t belongs to scope. The empty scope matches all.
func InScope(t *types.Ticket, scope string) bool {
	return scope == "" || t.Workstream == scope
}

// PredecessorsCompleted reports whether every blocked_by ticket of t has a
// completed build. Unknown predecessors count as incomplete.
func PredecessorsCompleted(doc *types.Document, t *types.Ticket) bool {
	return len(Unmet(doc, t)) == 0
}

// Unmet returns the predecessors of t whose build is not completed, in
// ascending id order.
func Unmet(doc *types.Document, t *types.Ticket) []string {
	var unmet []string
	for _, dep := range t.BlockedBy {
		p, ok := doc.Tickets[dep]
		if !ok || p.Build.Status != types.BuildCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Plannable returns tickets whose plan is pending and whose predecessors have
// all completed, ordered by (phase, id).
func Plannable(doc *types.Document, scope string) []*types.Ticket {
	return filter(doc, scope, func(t *types.Ticket) bool {
		return t.Plan.Status == types.PlanPending && PredecessorsCompleted(doc, t)
	})
}

// Buildable returns tickets with an approved plan, a pending build and every
// predecessor completed, ordered by (phase, id).
func Buildable(doc *types.Document, scope string) []*types.Ticket {
	return filter(doc, scope, IsBuildable(doc))
}

// IsBuildable returns the buildable predicate bound to doc.
func IsBuildable(doc *types.Document) func(*types.Ticket) bool {
	return func(t *types.Ticket) bool {
		return t.Plan.Status == types.PlanApproved &&
			t.Build.Status == types.BuildPending &&
			PredecessorsCompleted(doc, t)
	}
}

// Next returns the single buildable ticket with the lowest phase, ties broken
// by ascending id, or nil when nothing is buildable.
func Next(doc *types.Document, scope string) *types.Ticket {
	buildable := Buildable(doc, scope)
	if len(buildable) == 0 {
		return nil
	}
	return buildable[0]
}

// Blocked lists unfinished tickets that still wait on at least one
// predecessor, with the predecessors they wait on.
func Blocked(doc *types.Document, scope string) []*BlockedTicket {
	var out []*BlockedTicket
	for _, t := range doc.List() {
		if !InScope(t, scope) || t.Build.Status.IsTerminal() {
			continue
		}
		unmet := Unmet(doc, t)
		if len(unmet) == 0 {
			continue
		}
		out = append(out, &BlockedTicket{
			Ticket:         t,
			BlockedByCount: len(unmet),
			Waiting:        unmet,
		})
	}
	return out
}

// Escalated returns tickets whose retry budget is exhausted.
func Escalated(doc *types.Document, scope string) []*types.Ticket {
	return filter(doc, scope, func(t *types.Ticket) bool {
		return t.Build.Status == types.BuildEscalated
	})
}

// Requeueable returns failed tickets that still have retries left.
func Requeueable(doc *types.Document, scope string, maxRetries int) []*types.Ticket {
	return filter(doc, scope, func(t *types.Ticket) bool {
		return t.Build.Status == types.BuildFailed && t.Build.RetryCount <= maxRetries
	})
}

func filter(doc *types.Document, scope string, keep func(*types.Ticket) bool) []*types.Ticket {
	var out []*types.Ticket
	for _, t := range doc.List() {
		if InScope(t, scope) && keep(t) {
			out = append(out, t)
		}
	}
	return out
}
