package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/agent"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/scheduler"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// ErrNoPlanner is returned by PlanAll when the orchestrator has no planner.
var ErrNoPlanner = errors.New("no planner configured")

// PlanSummary reports a planning pass.
type PlanSummary struct {
	Planned []string         // plan written, awaiting approval
	Failed  map[string]error // planner failures, returned to pending
	Errors  map[string]error // store errors
}

// PlanAll plans every plannable ticket in scope, at most MaxParallel at a
// time. Each ticket is marked plan in_progress before the planner runs. A
// successful plan stores its artifact and stays in_progress until approved; a
// failed plan goes back to pending.
func (o *Orchestrator) PlanAll(ctx context.Context, scope string) (*PlanSummary, error) {
	if o.planner == nil {
		return nil, ErrNoPlanner
	}
	doc, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	summary := &PlanSummary{Failed: map[string]error{}, Errors: map[string]error{}}
	var mu sync.Mutex
	note := func(id string, planned bool, failure, storeErr error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case storeErr != nil:
			summary.Errors[id] = storeErr
		case failure != nil:
			summary.Failed[id] = failure
		case planned:
			summary.Planned = append(summary.Planned, id)
		}
	}

	var g errgroup.Group
	g.SetLimit(o.opts.MaxParallel)
	for _, t := range scheduler.Plannable(doc, scope) {
		id := t.ID
		var claimed *types.Ticket
		err := o.store.Apply(ctx, id, func(t *types.Ticket) error {
			if t.Plan.Status != types.PlanPending {
				return fmt.Errorf("plan of %s is %s", id, t.Plan.Status)
			}
			t.Plan.Status = types.PlanInProgress
			claimed = t.Clone()
			return nil
		})
		if err != nil {
			note(id, false, nil, err)
			continue
		}

		g.Go(func() error {
			o.opts.Log("planning %s", id)
			res, planErr := o.runPlanner(ctx, claimed)
			storeErr := o.store.Apply(context.WithoutCancel(ctx), id, func(t *types.Ticket) error {
				if planErr != nil {
					t.Plan.Status = types.PlanPending
					return nil
				}
				t.Plan.Artifact = res.Artifact
				return nil
			})
			if planErr != nil {
				o.opts.Log("planning %s failed: %v", id, planErr)
			}
			note(id, planErr == nil, planErr, storeErr)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(summary.Planned)
	return summary, ctx.Err()
}

func (o *Orchestrator) runPlanner(ctx context.Context, t *types.Ticket) (res agent.PlanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("planner panicked: %v", r)
		}
	}()
	return o.planner.Plan(ctx, t)
}

// Approve marks the plan of id approved and stamps approved_at.
func (o *Orchestrator) Approve(ctx context.Context, id string) error {
	return o.store.Apply(ctx, id, func(t *types.Ticket) error {
		if t.Plan.Status == types.PlanApproved {
			return nil
		}
		now := o.store.Now()
		t.Plan.Status = types.PlanApproved
		t.Plan.ApprovedAt = &now
		return nil
	})
}

// ApproveAll approves every plan in scope that is in_progress with an
// artifact, and returns the approved ids in (phase, id) order.
func (o *Orchestrator) ApproveAll(ctx context.Context, scope string) ([]string, error) {
	doc, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var approved []string
	for _, t := range doc.List() {
		if !scheduler.InScope(t, scope) || t.Plan.Status != types.PlanInProgress || t.Plan.Artifact == "" {
			continue
		}
		if err := o.Approve(ctx, t.ID); err != nil {
			return approved, err
		}
		approved = append(approved, t.ID)
	}
	return approved, nil
}

// Requeue returns failed tickets in scope to pending while they have retries
// left. Failed tickets already past the cap are escalated instead.
func (o *Orchestrator) Requeue(ctx context.Context, scope string) (requeued, escalated []string, err error) {
	doc, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range doc.List() {
		if !scheduler.InScope(t, scope) || t.Build.Status != types.BuildFailed {
			continue
		}
		var status types.BuildStatus
		err := o.store.Apply(ctx, t.ID, func(t *types.Ticket) error {
			if t.Build.RetryCount > o.opts.MaxRetries {
				t.Build.Status = types.BuildEscalated
			} else {
				t.Build.Status = types.BuildPending
			}
			status = t.Build.Status
			return nil
		})
		if err != nil {
			return requeued, escalated, err
		}
		if status == types.BuildEscalated {
			escalated = append(escalated, t.ID)
		} else {
			requeued = append(requeued, t.ID)
		}
	}
	return requeued, escalated, nil
}

// Retry puts a failed or escalated ticket back to pending. With reset the
// retry counter is zeroed first.
func (o *Orchestrator) Retry(ctx context.Context, id string, reset bool) error {
	t, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	switch t.Build.Status {
	case types.BuildFailed, types.BuildEscalated:
	case types.BuildPending:
		if !reset {
			return nil
		}
	default:
		return fmt.Errorf("%w: %s build is %s; only failed or escalated builds can be retried", storage.ErrInvalidValue, id, t.Build.Status)
	}
	if reset {
		if err := o.store.ResetRetries(ctx, id); err != nil {
			return err
		}
	}
	return o.store.Apply(ctx, id, func(t *types.Ticket) error {
		t.Build.Status = types.BuildPending
		return nil
	})
}
