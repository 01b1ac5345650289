// Package fixtures provides reproducible ticket graphs for tests and benchmarks.
package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// workstreams used across all fixtures
var commonWorkstreams = []string{
	"",
	"backend",
	"frontend",
	"infra",
}

// areas used across all fixtures
var commonAreas = []string{
	"api",
	"database",
	"auth",
	"ui",
	"deploy",
	"docs",
}

// summaries for realistic data
var summaries = []string{
	"Implement login endpoint",
	"Add validation logic",
	"Write unit tests",
	"Update documentation",
	"Fix memory leak",
	"Optimize query performance",
	"Add error logging",
	"Refactor helper functions",
	"Update database migrations",
	"Configure deployment",
}

var priorities = []types.Priority{
	types.PriorityCritical,
	types.PriorityHigh,
	types.PriorityMedium,
	types.PriorityLow,
}

// DAGConfig controls the shape and lifecycle distribution of a generated graph.
type DAGConfig struct {
	Tickets         int     // number of tickets
	EdgeProbability float64 // chance that a ticket depends on each earlier ticket (e.g. 0.15)
	CompletedRatio  float64 // share of eligible tickets whose build is completed
	ApprovedRatio   float64 // share of plan-eligible tickets whose plan is approved
	FailedRatio     float64 // share of remaining tickets left failed or escalated
	RandSeed        int64   // random seed for reproducibility
}

// DefaultDAGConfig returns a medium-sized graph with mixed lifecycle states.
func DefaultDAGConfig() DAGConfig {
	return DAGConfig{
		Tickets:         40,
		EdgeProbability: 0.1,
		CompletedRatio:  0.4,
		ApprovedRatio:   0.6,
		FailedRatio:     0.1,
		RandSeed:        42,
	}
}

// Generator produces random tickets from a fixed seed.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	// #nosec G404 - deterministic test data, not security sensitive
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Tickets returns n tickets T-000..T-(n-1). A ticket may only depend on
// tickets with a lower index, so the result is always acyclic.
func (g *Generator) Tickets(n int, edgeProbability float64) []*types.Ticket {
	tickets := make([]*types.Ticket, n)
	for i := 0; i < n; i++ {
		t := types.NewTicket(ID(i))
		t.Summary = summaries[g.rng.Intn(len(summaries))]
		t.Area = commonAreas[g.rng.Intn(len(commonAreas))]
		t.Priority = priorities[g.rng.Intn(len(priorities))]
		t.Workstream = commonWorkstreams[g.rng.Intn(len(commonWorkstreams))]
		for j := 0; j < i; j++ {
			if g.rng.Float64() < edgeProbability {
				t.BlockedBy = append(t.BlockedBy, ID(j))
			}
		}
		tickets[i] = t
	}
	return tickets
}

// Pair returns two distinct random ticket ids.
func (g *Generator) Pair(tickets []*types.Ticket) (string, string) {
	a := g.rng.Intn(len(tickets))
	b := g.rng.Intn(len(tickets) - 1)
	if b >= a {
		b++
	}
	return tickets[a].ID, tickets[b].ID
}

// Document builds a consistent document from cfg. Lifecycle states respect
// the store's invariants: builds are only completed or in progress once every
// predecessor is completed.
func Document(cfg DAGConfig) *types.Document {
	g := NewGenerator(cfg.RandSeed)
	doc := types.NewDocument(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	tickets := g.Tickets(cfg.Tickets, cfg.EdgeProbability)

	// Index order is a topological order, so predecessors are settled first.
	for _, t := range tickets {
		doc.Tickets[t.ID] = t
		g.assignLifecycle(doc, t, cfg)
	}
	storage.Refresh(doc)
	return doc
}

func (g *Generator) assignLifecycle(doc *types.Document, t *types.Ticket, cfg DAGConfig) {
	ready := true
	for _, dep := range t.BlockedBy {
		if doc.Tickets[dep].Build.Status != types.BuildCompleted {
			ready = false
			break
		}
	}

	if ready && g.rng.Float64() < cfg.ApprovedRatio {
		t.Plan.Status = types.PlanApproved
		at := doc.Metadata.CreatedAt
		t.Plan.ApprovedAt = &at
	} else if g.rng.Float64() < 0.2 {
		t.Plan.Status = types.PlanInProgress
		t.Plan.Artifact = fmt.Sprintf("plans/%s.md", t.ID)
	}

	roll := g.rng.Float64()
	switch {
	case ready && t.Plan.Status == types.PlanApproved && roll < cfg.CompletedRatio:
		t.Build.Status = types.BuildCompleted
		branch := "ws/" + t.ID
		t.Build.Branch = &branch
		if g.rng.Intn(2) == 0 {
			url := "https://example.com/pr/" + t.ID
			t.PR.URL = &url
			t.PR.Status = []types.PRStatus{types.PROpen, types.PRMerged}[g.rng.Intn(2)]
		}
	case roll < cfg.CompletedRatio+cfg.FailedRatio:
		t.Build.RetryCount = 1 + g.rng.Intn(4)
		if t.Build.RetryCount > 3 {
			t.Build.Status = types.BuildEscalated
		} else {
			t.Build.Status = types.BuildFailed
		}
		t.Build.LastError = "exit status 1"
	}
}

// Populate creates the tickets of a generated document in store and then
// replays their lifecycle through Apply, so the store enforces every invariant.
func Populate(ctx context.Context, store *storage.Store, cfg DAGConfig) error {
	doc := Document(cfg)
	tickets := doc.List()

	fresh := make([]*types.Ticket, len(tickets))
	for i, t := range tickets {
		f := types.NewTicket(t.ID)
		f.Summary, f.Area, f.Priority, f.Workstream = t.Summary, t.Area, t.Priority, t.Workstream
		f.BlockedBy = t.BlockedBy
		fresh[i] = f
	}
	if err := store.CreateBatch(ctx, fresh); err != nil {
		return fmt.Errorf("failed to create tickets: %w", err)
	}

	// doc.List is phase-ordered, so predecessors complete before successors claim.
	for _, t := range tickets {
		want := t
		err := store.Apply(ctx, t.ID, func(cur *types.Ticket) error {
			cur.Plan = want.Clone().Plan
			cur.Build = want.Clone().Build
			cur.PR = want.Clone().PR
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to apply lifecycle for %s: %w", t.ID, err)
		}
	}
	return nil
}

// ID formats the fixture id for index i.
func ID(i int) string {
	return fmt.Sprintf("T-%03d", i)
}
