// Package report projects the store into a status summary: tickets grouped by
// phase, counts per derived state, escalations and the critical path.
// Rendering is deterministic so repeated calls without a mutation match.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/graph"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/scheduler"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// State is the derived display state of a ticket.
type State string

// Display states. Blocked is derived: a pending or failed build whose
// predecessors have not all completed.
const (
	StateCompleted  State = "completed"
	StateInProgress State = "in_progress"
	StateBlocked    State = "blocked"
	StatePending    State = "pending"
	StateFailed     State = "failed"
	StateEscalated  State = "escalated"
)

// Counts tallies tickets per derived state.
type Counts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Pending    int `json:"pending"`
	Failed     int `json:"failed"`
	Escalated  int `json:"escalated"`
}

// Row is one ticket line of the status table.
type Row struct {
	ID         string           `json:"id"`
	Summary    string           `json:"summary"`
	Workstream string           `json:"workstream,omitempty"`
	Priority   types.Priority   `json:"priority"`
	State      State            `json:"state"`
	Plan       types.PlanStatus `json:"plan"`
	Retries    int              `json:"retry_count"`
	Waiting    []string         `json:"waiting_on,omitempty"`
	PR         types.PRStatus   `json:"pr"`
}

// Phase groups the rows of one phase.
type Phase struct {
	Phase   int   `json:"phase"`
	Tickets []Row `json:"tickets"`
}

// Escalation is a ticket that needs an operator.
type Escalation struct {
	ID         string `json:"id"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// Report is the projection of one snapshot.
type Report struct {
	Scope        string       `json:"scope,omitempty"`
	Counts       Counts       `json:"counts"`
	Phases       []Phase      `json:"phases"`
	Escalations  []Escalation `json:"escalations"`
	CriticalPath []string     `json:"critical_path"`
}

// StateOf derives the display state of t within doc.
func StateOf(doc *types.Document, t *types.Ticket) State {
	switch t.Build.Status {
	case types.BuildCompleted:
		return StateCompleted
	case types.BuildInProgress:
		return StateInProgress
	case types.BuildEscalated:
		return StateEscalated
	}
	if !scheduler.PredecessorsCompleted(doc, t) {
		return StateBlocked
	}
	if t.Build.Status == types.BuildFailed {
		return StateFailed
	}
	return StatePending
}

// Build computes the report for tickets in scope.
func Build(doc *types.Document, scope string) *Report {
	r := &Report{Scope: scope, Phases: []Phase{}, Escalations: []Escalation{}, CriticalPath: []string{}}
	edges := graph.Edges{}

	for _, t := range doc.List() {
		if !scheduler.InScope(t, scope) {
			continue
		}
		edges[t.ID] = t.BlockedBy
		state := StateOf(doc, t)
		r.Counts.Total++
		switch state {
		case StateCompleted:
			r.Counts.Completed++
		case StateInProgress:
			r.Counts.InProgress++
		case StateBlocked:
			r.Counts.Blocked++
		case StatePending:
			r.Counts.Pending++
		case StateFailed:
			r.Counts.Failed++
		case StateEscalated:
			r.Counts.Escalated++
			r.Escalations = append(r.Escalations, Escalation{ID: t.ID, RetryCount: t.Build.RetryCount, LastError: t.Build.LastError})
		}

		row := Row{
			ID:         t.ID,
			Summary:    t.Summary,
			Workstream: t.Workstream,
			Priority:   t.Priority,
			State:      state,
			Plan:       t.Plan.Status,
			Retries:    t.Build.RetryCount,
			PR:         t.PR.Status,
		}
		if state == StateBlocked {
			row.Waiting = scheduler.Unmet(doc, t)
		}
		if n := len(r.Phases); n == 0 || r.Phases[n-1].Phase != t.Phase {
			r.Phases = append(r.Phases, Phase{Phase: t.Phase})
		}
		last := &r.Phases[len(r.Phases)-1]
		last.Tickets = append(last.Tickets, row)
	}

	if path := graph.CriticalPath(edges); len(path) > 1 {
		r.CriticalPath = path
	}
	return r
}

// SummaryLine is the one-line tally printed under the table.
func (r *Report) SummaryLine() string {
	c := r.Counts
	parts := []string{
		fmt.Sprintf("%d tickets", c.Total),
		fmt.Sprintf("%d done", c.Completed),
		fmt.Sprintf("%d in-progress", c.InProgress),
		fmt.Sprintf("%d blocked", c.Blocked),
		fmt.Sprintf("%d pending", c.Pending),
	}
	if c.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", c.Failed))
	}
	if c.Escalated > 0 {
		parts = append(parts, fmt.Sprintf("%d escalated", c.Escalated))
	}
	return strings.Join(parts, " | ")
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var stateColors = map[State]*color.Color{
	StateCompleted:  color.New(color.FgGreen),
	StateInProgress: color.New(color.FgCyan),
	StateBlocked:    color.New(color.FgYellow),
	StatePending:    color.New(color.Reset),
	StateFailed:     color.New(color.FgRed),
	StateEscalated:  color.New(color.FgRed, color.Bold),
}

// Render writes the phase-grouped table. Colors follow color.NoColor, so
// output to a pipe or with NO_COLOR set is plain.
func (r *Report) Render(w io.Writer) {
	if r.Counts.Total == 0 {
		fmt.Fprintln(w, "No tickets tracked.")
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	for _, ph := range r.Phases {
		fmt.Fprintf(w, "%s\n", bold(fmt.Sprintf("Phase %d", ph.Phase)))
		for _, row := range ph.Tickets {
			state := fmt.Sprintf("%-11s", row.State)
			line := fmt.Sprintf("  %-12s %s  %-8s %s", row.ID, stateColors[row.State].Sprint(state), row.Priority, row.Summary)
			if row.Workstream != "" {
				line += fmt.Sprintf(" [%s]", row.Workstream)
			}
			if len(row.Waiting) > 0 {
				line += fmt.Sprintf(" (waiting on %s)", strings.Join(row.Waiting, ", "))
			}
			if row.Retries > 0 {
				line += fmt.Sprintf(" retries=%d", row.Retries)
			}
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, r.SummaryLine())
	if len(r.CriticalPath) > 0 {
		fmt.Fprintf(w, "Critical path: %s\n", strings.Join(r.CriticalPath, " -> "))
	}
	if len(r.Escalations) > 0 {
		fmt.Fprintf(w, "\n%s Escalated (needs an operator):\n", red("✗"))
		for _, e := range r.Escalations {
			fmt.Fprintf(w, "  %s after %d attempts: %s\n", e.ID, e.RetryCount, e.LastError)
		}
	} else if r.Counts.Completed == r.Counts.Total {
		fmt.Fprintf(w, "\n%s All tickets completed\n", green("✓"))
	}
}
