package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/graph"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/memory"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/testutil/fixtures"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

func ticket(id string, deps ...string) *types.Ticket {
	t := types.NewTicket(id)
	t.BlockedBy = deps
	return t
}

func seed(t *testing.T, tickets ...*types.Ticket) *storage.Store {
	t.Helper()
	store := memory.NewStore()
	if err := store.CreateBatch(context.Background(), tickets); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	return store
}

func snapshot(t *testing.T, store *storage.Store) *types.Document {
	t.Helper()
	doc, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return doc
}

func assertTranspose(t *testing.T, doc *types.Document) {
	t.Helper()
	want := graph.Transpose(doc.Edges())
	for id, tk := range doc.Tickets {
		if diff := cmp.Diff(want[id], tk.Blocks); diff != "" {
			t.Errorf("%s blocks mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestCreateDefaults(t *testing.T) {
	store := seed(t, ticket("PROJ-101"))
	got, err := store.Get(context.Background(), "PROJ-101")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Plan.Status != types.PlanPending || got.Build.Status != types.BuildPending {
		t.Errorf("lifecycle = %s/%s, want pending/pending", got.Plan.Status, got.Build.Status)
	}
	if got.PR.URL != nil || got.PR.Status != types.PRNone {
		t.Errorf("pr = %v/%s, want nil/none", got.PR.URL, got.PR.Status)
	}
	if got.Phase != 0 {
		t.Errorf("phase = %d, want 0", got.Phase)
	}
}

func TestCreateErrors(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"))
	before := snapshot(t, store)

	tests := []struct {
		name    string
		tickets []*types.Ticket
		want    error
	}{
		{"duplicate of stored", []*types.Ticket{ticket("A")}, storage.ErrDuplicateID},
		{"duplicate within batch", []*types.Ticket{ticket("B"), ticket("B")}, storage.ErrDuplicateID},
		{"unknown predecessor", []*types.Ticket{ticket("B", "Z")}, storage.ErrNotFound},
		{"bad priority", []*types.Ticket{{ID: "B", Priority: "urgent"}}, storage.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateBatch(ctx, tt.tickets)
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateBatch = %v, want %v", err, tt.want)
			}
			if diff := cmp.Diff(before, snapshot(t, store)); diff != "" {
				t.Errorf("store changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestCreateBatchCycleIsAtomic(t *testing.T) {
	store := seed(t, ticket("A"))
	before := snapshot(t, store)

	err := store.CreateBatch(context.Background(), []*types.Ticket{
		ticket("B", "A", "C"),
		ticket("C", "B"),
	})
	var cycle *storage.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("CreateBatch = %v, want CycleError", err)
	}
	if diff := cmp.Diff([]string{"B", "C", "B"}, cycle.Path); diff != "" {
		t.Errorf("cycle path (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, snapshot(t, store)); diff != "" {
		t.Errorf("store changed (-before +after):\n%s", diff)
	}
}

// A is blocked by B; making B depend on A must be rejected with path [A B A].
func TestAddDependencyRejectsCycle(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("B"), ticket("A", "B"))
	before := snapshot(t, store)

	err := store.AddDependency(ctx, "B", "A")
	var cycle *storage.CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("AddDependency = %v, want CycleError", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "A"}, cycle.Path); diff != "" {
		t.Errorf("cycle path (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, snapshot(t, store)); diff != "" {
		t.Errorf("store changed (-before +after):\n%s", diff)
	}
}

func TestAddDependencySelfAndUnknown(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"))

	var cycle *storage.CycleError
	if err := store.AddDependency(ctx, "A", "A"); !errors.As(err, &cycle) {
		t.Fatalf("self dependency = %v, want CycleError", err)
	}
	if diff := cmp.Diff([]string{"A", "A"}, cycle.Path); diff != "" {
		t.Errorf("self cycle path (-want +got):\n%s", diff)
	}
	if err := store.AddDependency(ctx, "A", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown predecessor = %v, want ErrNotFound", err)
	}
	if err := store.AddDependency(ctx, "missing", "A"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown ticket = %v, want ErrNotFound", err)
	}
}

func TestAddDependencyExistingEdgeIsNoop(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"), ticket("B", "A"))
	store.SetClock(func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) })
	before := snapshot(t, store)

	if err := store.AddDependency(ctx, "B", "A"); err != nil {
		t.Fatalf("AddDependency = %v, want nil", err)
	}
	if diff := cmp.Diff(before, snapshot(t, store)); diff != "" {
		t.Errorf("no-op edge changed the store (-before +after):\n%s", diff)
	}
}

func TestAddDependencyRecomputesPhasesAndTranspose(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"), ticket("B"), ticket("C", "B"))

	if err := store.AddDependency(ctx, "B", "A"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	doc := snapshot(t, store)
	want := map[string]int{"A": 0, "B": 1, "C": 2}
	for id, phase := range want {
		if doc.Tickets[id].Phase != phase {
			t.Errorf("%s phase = %d, want %d", id, doc.Tickets[id].Phase, phase)
		}
	}
	assertTranspose(t, doc)
}

func TestUpdateFieldErrors(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"), ticket("B", "A"))

	tests := []struct {
		name  string
		id    string
		field string
		value string
		want  error
	}{
		{"unknown ticket", "Z", "summary", "x", storage.ErrNotFound},
		{"unknown field", "A", "build.colour", "x", storage.ErrInvalidField},
		{"phase read-only", "A", "phase", "3", storage.ErrInvalidField},
		{"blocks read-only", "A", "blocks", "B", storage.ErrInvalidField},
		{"blocked_by read-only", "B", "blocked_by", "", storage.ErrInvalidField},
		{"id read-only", "A", "id", "Q", storage.ErrInvalidField},
		{"bad build status", "A", "build.status", "exploded", storage.ErrInvalidValue},
		{"bad plan status", "A", "plan.status", "maybe", storage.ErrInvalidValue},
		{"bad pr status", "A", "pr.status", "draft", storage.ErrInvalidValue},
		{"bad retry count", "A", "build.retry_count", "-1", storage.ErrInvalidValue},
		{"bad timestamp", "A", "plan.approved_at", "yesterday", storage.ErrInvalidValue},
		{"claim before predecessors", "B", "build.status", "in_progress", storage.ErrPredecessorsIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := snapshot(t, store)
			if err := store.Update(ctx, tt.id, tt.field, tt.value); !errors.Is(err, tt.want) {
				t.Fatalf("Update(%s, %s, %s) = %v, want %v", tt.id, tt.field, tt.value, err, tt.want)
			}
			if diff := cmp.Diff(before, snapshot(t, store)); diff != "" {
				t.Errorf("store changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestUpdateBumpsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"))
	later := time.Date(2031, 6, 1, 8, 30, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return later })

	if err := store.Update(ctx, "A", "pr.url", "https://example.com/pr/1"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	doc := snapshot(t, store)
	if !doc.Metadata.UpdatedAt.Equal(later) {
		t.Errorf("updated_at = %v, want %v", doc.Metadata.UpdatedAt, later)
	}
	if doc.Metadata.CreatedAt.Equal(later) {
		t.Error("created_at should not move on update")
	}
	if got := doc.Tickets["A"].PRURL(); got != "https://example.com/pr/1" {
		t.Errorf("pr.url = %q", got)
	}
}

func TestSetClockWhileUpdating(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"))
	final := time.Date(2032, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 50 {
			store.SetClock(func() time.Time { return final.Add(-time.Duration(50-i) * time.Hour) })
		}
		store.SetClock(func() time.Time { return final })
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			if err := store.Update(ctx, "A", "pr.url", "https://example.com/pr/1"); err != nil {
				t.Errorf("Update failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if got := store.Now(); !got.Equal(final) {
		t.Errorf("Now() = %v, want %v", got, final)
	}
}

func TestClaimAfterPredecessorsComplete(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"), ticket("B", "A"))

	if err := store.Update(ctx, "A", "build.status", "completed"); err != nil {
		t.Fatalf("Update A failed: %v", err)
	}
	if err := store.Update(ctx, "B", "build.status", "in_progress"); err != nil {
		t.Fatalf("claim B after A completed = %v, want nil", err)
	}
}

func TestRetryCountMonotonic(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"))

	if err := store.Update(ctx, "A", "build.retry_count", "2"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Update(ctx, "A", "build.retry_count", "1"); !errors.Is(err, storage.ErrRetryDecrease) {
		t.Fatalf("decrease = %v, want ErrRetryDecrease", err)
	}
	err := store.Apply(ctx, "A", func(tk *types.Ticket) error {
		tk.Build.RetryCount = 0
		return nil
	})
	if !errors.Is(err, storage.ErrRetryDecrease) {
		t.Fatalf("Apply decrease = %v, want ErrRetryDecrease", err)
	}

	if err := store.ResetRetries(ctx, "A"); err != nil {
		t.Fatalf("ResetRetries failed: %v", err)
	}
	got, _ := store.Get(ctx, "A")
	if got.Build.RetryCount != 0 {
		t.Errorf("retry_count = %d after reset, want 0", got.Build.RetryCount)
	}
}

func TestApplyRejectsDerivedEdits(t *testing.T) {
	ctx := context.Background()
	store := seed(t, ticket("A"), ticket("B", "A"))

	err := store.Apply(ctx, "B", func(tk *types.Ticket) error {
		tk.BlockedBy = nil
		return nil
	})
	if !errors.Is(err, storage.ErrInvalidField) {
		t.Errorf("Apply editing blocked_by = %v, want ErrInvalidField", err)
	}
	err = store.Apply(ctx, "A", func(tk *types.Ticket) error {
		tk.Phase = 7
		return nil
	})
	if !errors.Is(err, storage.ErrInvalidField) {
		t.Errorf("Apply editing phase = %v, want ErrInvalidField", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := seed(t, ticket("A"))
	doc := snapshot(t, store)
	doc.Tickets["A"].Summary = "mutated"
	doc.Tickets["A"].BlockedBy = append(doc.Tickets["A"].BlockedBy, "ghost")

	got, _ := store.Get(context.Background(), "A")
	if got.Summary != "" || len(got.BlockedBy) != 0 {
		t.Errorf("snapshot mutation leaked into store: %+v", got)
	}
}

func TestUninitializedStore(t *testing.T) {
	store := storage.New(memory.NewUninitialized())
	ctx := context.Background()
	if _, err := store.List(ctx); !errors.Is(err, storage.ErrNotInitialized) {
		t.Errorf("List = %v, want ErrNotInitialized", err)
	}
	if err := store.Create(ctx, ticket("A")); !errors.Is(err, storage.ErrNotInitialized) {
		t.Errorf("Create = %v, want ErrNotInitialized", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Create(ctx, ticket("A")); err != nil {
		t.Errorf("Create after Init = %v", err)
	}
}

// Random sequences of AddDependency keep the graph acyclic, blocks an exact
// transpose and phases monotonic along every edge.
func TestRandomMutationsKeepInvariants(t *testing.T) {
	ctx := context.Background()
	for seed := int64(1); seed <= 20; seed++ {
		store := memory.NewStore()
		g := fixtures.NewGenerator(seed)
		tickets := g.Tickets(25, 0)
		if err := store.CreateBatch(ctx, tickets); err != nil {
			t.Fatalf("seed %d: CreateBatch failed: %v", seed, err)
		}

		for i := 0; i < 60; i++ {
			a, b := g.Pair(tickets)
			err := store.AddDependency(ctx, a, b)
			var cycle *storage.CycleError
			if err != nil && !errors.As(err, &cycle) {
				t.Fatalf("seed %d: AddDependency(%s, %s) = %v", seed, a, b, err)
			}
		}

		doc := snapshot(t, store)
		if cycle := graph.DetectCycle(doc.Edges()); cycle != nil {
			t.Fatalf("seed %d: cycle %v survived", seed, cycle)
		}
		assertTranspose(t, doc)
		for _, tk := range doc.Tickets {
			for _, dep := range tk.BlockedBy {
				if doc.Tickets[dep].Phase >= tk.Phase {
					t.Errorf("seed %d: phase(%s)=%d not above phase(%s)=%d",
						seed, tk.ID, tk.Phase, dep, doc.Tickets[dep].Phase)
				}
			}
		}
	}
}

func TestFieldPathsListsWritableFields(t *testing.T) {
	want := []string{
		"area", "build.branch", "build.last_error", "build.retry_count", "build.status",
		"plan.approved_at", "plan.artifact", "plan.status",
		"pr.status", "pr.url", "priority", "summary", "workstream",
	}
	if diff := cmp.Diff(want, storage.FieldPaths()); diff != "" {
		t.Errorf("FieldPaths mismatch (-want +got):\n%s", diff)
	}
}
