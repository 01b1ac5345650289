//go:build bench

package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// BenchmarkCycleRejection_Linear_100 measures a rejected cycle-closing edge on
// a chain T-0 <- T-1 <- ... <- T-99. Every iteration loads the document, runs
// cycle detection over the whole chain and rolls back.
func BenchmarkCycleRejection_Linear_100(b *testing.B) {
	benchmarkCycleRejection(b, 100, func(i int) []string { return []string{fmt.Sprintf("T-%d", i-1)} })
}

// BenchmarkCycleRejection_Linear_1000 is the same chain with 1000 tickets.
func BenchmarkCycleRejection_Linear_1000(b *testing.B) {
	benchmarkCycleRejection(b, 1000, func(i int) []string { return []string{fmt.Sprintf("T-%d", i-1)} })
}

// BenchmarkCycleRejection_Tree_1000 uses a tree with branching factor 3.
func BenchmarkCycleRejection_Tree_1000(b *testing.B) {
	benchmarkCycleRejection(b, 1000, func(i int) []string { return []string{fmt.Sprintf("T-%d", (i-1)/3)} })
}

func benchmarkCycleRejection(b *testing.B, n int, parents func(i int) []string) {
	ctx := context.Background()
	backend, err := New(":memory:")
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer backend.Close()
	store := storage.New(backend)
	if err := store.Init(ctx); err != nil {
		b.Fatalf("Init failed: %v", err)
	}

	tickets := make([]*types.Ticket, n)
	for i := 0; i < n; i++ {
		t := types.NewTicket(fmt.Sprintf("T-%d", i))
		if i > 0 {
			t.BlockedBy = parents(i)
		}
		tickets[i] = t
	}
	if err := store.CreateBatch(ctx, tickets); err != nil {
		b.Fatalf("CreateBatch failed: %v", err)
	}

	root, leaf := tickets[0].ID, tickets[n-1].ID

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := store.AddDependency(ctx, root, leaf); err == nil {
			b.Fatal("expected cycle rejection")
		}
	}
}
