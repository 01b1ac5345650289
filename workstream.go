// Package workstream provides a minimal public API for driving ws from Go.
//
// Programs that want their own build loop (an agent runner, a CI job) can open
// the same store the ws CLI uses, ask the scheduler for buildable work and hand
// a Builder to the orchestrator. Everything else stays internal.
package workstream

import (
	"context"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/agent"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/orchestrator"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/scheduler"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage/factory"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/workspace"
)

// Store is a ticket store backed by a JSON document or SQLite.
type Store = storage.Store

// Open opens the store at path. The backend follows the extension: .db and
// .sqlite are SQLite, anything else is the JSON document.
func Open(path string) (*Store, error) {
	return factory.New("", path)
}

// OpenWorkspace opens the store of the nearest .claude/workstreams directory
// (or $WS_DIR), honoring its metadata.json.
func OpenWorkspace() (*Store, error) {
	loc, err := workspace.Resolve("", "")
	if err != nil {
		return nil, err
	}
	return factory.NewFromConfig(loc.Dir)
}

// FindWorkspaceDir returns the workspace directory, or "" if there is none.
func FindWorkspaceDir() string {
	return workspace.FindDir()
}

// Core types
type (
	Ticket      = types.Ticket
	Document    = types.Document
	Priority    = types.Priority
	PlanStatus  = types.PlanStatus
	BuildStatus = types.BuildStatus
	PRStatus    = types.PRStatus
)

// Build status constants
const (
	BuildPending    = types.BuildPending
	BuildInProgress = types.BuildInProgress
	BuildCompleted  = types.BuildCompleted
	BuildFailed     = types.BuildFailed
	BuildEscalated  = types.BuildEscalated
)

// Plan status constants
const (
	PlanPending    = types.PlanPending
	PlanInProgress = types.PlanInProgress
	PlanApproved   = types.PlanApproved
)

// PR status constants
const (
	PRNone   = types.PRNone
	PROpen   = types.PROpen
	PRMerged = types.PRMerged
	PRClosed = types.PRClosed
)

// Builder and planner collaborators
type (
	Builder     = agent.Builder
	BuildFunc   = agent.BuildFunc
	BuildResult = agent.BuildResult
	Planner     = agent.Planner
	PlanFunc    = agent.PlanFunc
	PlanResult  = agent.PlanResult
)

// Orchestration
type (
	Options    = orchestrator.Options
	RunSummary = orchestrator.RunSummary
)

// Next returns the next buildable ticket in scope ("" for all workstreams),
// or nil when nothing is buildable.
func Next(doc *Document, scope string) *Ticket {
	return scheduler.Next(doc, scope)
}

// Buildable returns every buildable ticket in scope in (phase, id) order.
func Buildable(doc *Document, scope string) []*Ticket {
	return scheduler.Buildable(doc, scope)
}

// Build runs builder over every buildable ticket in scope until nothing is
// left to build, a budget in opts runs out, or ctx is cancelled.
func Build(ctx context.Context, store *Store, builder Builder, scope string, opts Options) (*RunSummary, error) {
	return orchestrator.New(store, builder, nil, opts).Run(ctx, scope)
}
