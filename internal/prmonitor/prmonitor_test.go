package prmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

func testDoc(prs map[string]types.PRStatus, edges map[string][]string) *types.Document {
	doc := types.NewDocument(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	for id, status := range prs {
		t := types.NewTicket(id)
		t.PR.Status = status
		if status != types.PRNone {
			url := "https://example.com/pr/" + id
			t.PR.URL = &url
		}
		t.BlockedBy = edges[id]
		doc.Tickets[id] = t
	}
	storage.Refresh(doc)
	return doc
}

// D's PR is open and its only predecessor E's PR is open: D is blocked on E.
func TestCheckBlockedByUnmergedPredecessor(t *testing.T) {
	doc := testDoc(
		map[string]types.PRStatus{"D": types.PROpen, "E": types.PROpen},
		map[string][]string{"D": {"E"}},
	)
	got := Check(doc)
	want := []Report{{
		TicketID: "D",
		PRURL:    "https://example.com/pr/D",
		PRStatus: types.PROpen,
		Blockers: []Waiting{{ID: "E", Status: types.PROpen}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Check mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckReadinessAndFiltering(t *testing.T) {
	doc := testDoc(
		map[string]types.PRStatus{
			"A": types.PRMerged,
			"B": types.PRMerged,
			"C": types.PROpen,   // all preds merged -> ready
			"D": types.PRClosed, // waits on C (open) and N (no PR)
			"N": types.PRNone,
			"M": types.PRMerged, // merged itself -> not reported
			"R": types.PROpen,   // no predecessors -> not reported
		},
		map[string][]string{
			"C": {"A", "B"},
			"D": {"N", "C", "A"},
			"M": {"C"},
		},
	)
	got := Check(doc)
	want := []Report{
		{TicketID: "C", PRURL: "https://example.com/pr/C", PRStatus: types.PROpen, Ready: true},
		{TicketID: "D", PRURL: "https://example.com/pr/D", PRStatus: types.PRClosed, Blockers: []Waiting{
			{ID: "C", Status: types.PROpen},
			{ID: "N", Status: types.PRNone},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Check mismatch (-want +got):\n%s", diff)
	}
	if blocked := Blocked(got); len(blocked) != 1 || blocked[0].TicketID != "D" {
		t.Errorf("Blocked = %+v", blocked)
	}
}

func TestCheckIsIdempotentAndReadOnly(t *testing.T) {
	doc := testDoc(
		map[string]types.PRStatus{"X": types.PROpen, "Y": types.PROpen, "Z": types.PROpen},
		map[string][]string{"X": {"Y"}, "Y": {"Z"}},
	)
	before := doc.Clone()
	first := Check(doc)
	second := Check(doc)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Check not idempotent:\n%s", diff)
	}
	if diff := cmp.Diff(before, doc); diff != "" {
		t.Errorf("Check mutated the document:\n%s", diff)
	}
}

type fakeSource map[string]types.PRStatus

func (f fakeSource) Status(ctx context.Context, t *types.Ticket) (types.PRStatus, error) {
	s, ok := f[t.ID]
	if !ok {
		return "", errors.New("not found")
	}
	return s, nil
}

func TestPoll(t *testing.T) {
	doc := testDoc(
		map[string]types.PRStatus{
			"A": types.PROpen,   // changes to merged
			"B": types.PROpen,   // unchanged
			"C": types.PRMerged, // skipped
			"D": types.PRNone,   // no URL, skipped
			"E": types.PROpen,   // lookup error
		},
		nil,
	)
	got := Poll(context.Background(), doc, fakeSource{"A": types.PRMerged, "B": types.PROpen, "C": types.PRClosed})
	if len(got) != 2 {
		t.Fatalf("Poll = %+v, want 2 entries", got)
	}
	if got[0].TicketID != "A" || got[0].From != types.PROpen || got[0].To != types.PRMerged || got[0].Err != nil {
		t.Errorf("Poll[0] = %+v", got[0])
	}
	if got[1].TicketID != "E" || got[1].Err == nil {
		t.Errorf("Poll[1] = %+v", got[1])
	}
}
