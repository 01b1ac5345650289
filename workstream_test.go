package workstream_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	workstream "github.com/jana-rasakanthan-axomic/atelier-sub000"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

func newTicket(id string, blockedBy ...string) *workstream.Ticket {
	t := types.NewTicket(id)
	t.Summary = "ticket " + id
	t.BlockedBy = blockedBy
	t.Plan.Status = workstream.PlanApproved
	return t
}

func TestBuildWithCustomBuilder(t *testing.T) {
	ctx := context.Background()
	store, err := workstream.Open(filepath.Join(t.TempDir(), "status.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := store.CreateBatch(ctx, []*workstream.Ticket{
		newTicket("API-1"),
		newTicket("API-2", "API-1"),
		newTicket("API-3", "API-1"),
	}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	doc, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next := workstream.Next(doc, ""); next == nil || next.ID != "API-1" {
		t.Fatalf("Next = %v, want API-1", next)
	}

	var mu sync.Mutex
	var order []string
	builder := workstream.BuildFunc(func(_ context.Context, tk *workstream.Ticket) (workstream.BuildResult, error) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, tk.ID)
		return workstream.BuildResult{Branch: "feat/" + tk.ID}, nil
	})
	summary, err := workstream.Build(ctx, store, builder, "", workstream.Options{MaxParallel: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(summary.Completed) != 3 || order[0] != "API-1" {
		t.Errorf("completed %v in order %v", summary.Completed, order)
	}

	doc, err = store.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var statuses []workstream.BuildStatus
	for _, tk := range doc.List() {
		statuses = append(statuses, tk.Build.Status)
	}
	want := []workstream.BuildStatus{workstream.BuildCompleted, workstream.BuildCompleted, workstream.BuildCompleted}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses (-want +got):\n%s", diff)
	}
	if got := doc.Tickets["API-2"].BranchName(); got != "feat/API-2" {
		t.Errorf("API-2 branch = %q", got)
	}
}

func TestOpenWorkspaceWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WS_DIR", dir)
	if got := workstream.FindWorkspaceDir(); got != dir {
		t.Errorf("FindWorkspaceDir = %q, want %q", got, dir)
	}
	store, err := workstream.OpenWorkspace()
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	defer store.Close()
	if got, want := store.Path(), filepath.Join(dir, "status.json"); got != want {
		t.Errorf("store path = %q, want %q", got, want)
	}
}
