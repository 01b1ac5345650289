// Package prmonitor checks whether open pull requests are blocked by
// predecessor pull requests that have not merged yet. It is advisory and
// never writes to the store.
package prmonitor

import (
	"context"
	"sort"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Waiting is an unmerged predecessor pull request.
type Waiting struct {
	ID     string         `json:"id"`
	Status types.PRStatus `json:"pr_status"`
}

// Report is the merge readiness of one ticket's pull request.
type Report struct {
	TicketID string         `json:"ticket"`
	PRURL    string         `json:"pr_url,omitempty"`
	PRStatus types.PRStatus `json:"pr_status"`
	Ready    bool           `json:"ready"`
	Blockers []Waiting      `json:"blocked_by,omitempty"`
}

// Check reports every ticket with an open or closed (not merged) pull request
// and at least one predecessor. A ticket is ready when every predecessor's
// pull request is merged. Reports are sorted by ticket id.
func Check(doc *types.Document) []Report {
	var reports []Report
	for _, id := range doc.IDs() {
		t := doc.Tickets[id]
		if !tracked(t) || len(t.BlockedBy) == 0 {
			continue
		}
		r := Report{TicketID: id, PRURL: t.PRURL(), PRStatus: t.PR.Status}
		for _, dep := range t.BlockedBy {
			status := types.PRNone
			if p, ok := doc.Tickets[dep]; ok {
				status = p.PR.Status
			}
			if status != types.PRMerged {
				r.Blockers = append(r.Blockers, Waiting{ID: dep, Status: status})
			}
		}
		sort.Slice(r.Blockers, func(i, j int) bool { return r.Blockers[i].ID < r.Blockers[j].ID })
		r.Ready = len(r.Blockers) == 0
		reports = append(reports, r)
	}
	return reports
}

func tracked(t *types.Ticket) bool {
	return t.PR.Status != "" && t.PR.Status != types.PRNone && t.PR.Status != types.PRMerged
}

// Blocked returns the reports that are not ready.
func Blocked(reports []Report) []Report {
	var out []Report
	for _, r := range reports {
		if !r.Ready {
			out = append(out, r)
		}
	}
	return out
}

// StatusSource looks up the live status of a ticket's pull request.
type StatusSource interface {
	Status(ctx context.Context, t *types.Ticket) (types.PRStatus, error)
}

// Refresh is a pending pr.status change found by Poll.
type Refresh struct {
	TicketID string
	From     types.PRStatus
	To       types.PRStatus
	Err      error
}

// Poll asks src for the status of every pull request with a URL that is not
// merged yet and returns the changes. The caller decides whether to write
// them; Poll itself is read-only.
func Poll(ctx context.Context, doc *types.Document, src StatusSource) []Refresh {
	var out []Refresh
	for _, id := range doc.IDs() {
		t := doc.Tickets[id]
		if t.PRURL() == "" || t.PR.Status == types.PRMerged {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		status, err := src.Status(ctx, t)
		if err != nil {
			out = append(out, Refresh{TicketID: id, From: t.PR.Status, Err: err})
			continue
		}
		if status != t.PR.Status {
			out = append(out, Refresh{TicketID: id, From: t.PR.Status, To: status})
		}
	}
	return out
}
