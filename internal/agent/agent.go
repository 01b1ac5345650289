// Package agent defines the external collaborators the orchestrator drives:
// a Planner that produces a plan artifact for a ticket and a Builder that
// implements it. Both report pass/fail through their error result.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// ErrNotConfigured is returned when no command or provider is set up.
var ErrNotConfigured = errors.New("agent not configured")

// BuildResult is what a successful build reports back.
type BuildResult struct {
	Branch string // defaults to DefaultBranch(ticket) when empty
	Output string
}

// PlanResult is what a successful planning run reports back.
type PlanResult struct {
	Artifact string // path of the written plan
}

// Builder implements one ticket. A non-nil error is a failed build.
type Builder interface {
	Build(ctx context.Context, t *types.Ticket) (BuildResult, error)
}

// Planner writes a plan for one ticket. A non-nil error is a failed plan.
type Planner interface {
	Plan(ctx context.Context, t *types.Ticket) (PlanResult, error)
}

// BuildFunc adapts a function to the Builder interface.
type BuildFunc func(ctx context.Context, t *types.Ticket) (BuildResult, error)

// Build calls f(ctx, t).
func (f BuildFunc) Build(ctx context.Context, t *types.Ticket) (BuildResult, error) {
	return f(ctx, t)
}

// PlanFunc adapts a function to the Planner interface.
type PlanFunc func(ctx context.Context, t *types.Ticket) (PlanResult, error)

// Plan calls f(ctx, t).
func (f PlanFunc) Plan(ctx context.Context, t *types.Ticket) (PlanResult, error) {
	return f(ctx, t)
}

// DefaultBranch is the branch recorded when a builder does not name one.
func DefaultBranch(t *types.Ticket) string {
	return "ws/" + t.ID
}

// PlanPath returns where the plan for id lives under plansDir.
func PlanPath(plansDir, id string) string {
	return filepath.Join(plansDir, id+".md")
}

func writePlan(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create plans directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
