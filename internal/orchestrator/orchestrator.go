// Package orchestrator drives tickets through planning and building. It
// dispatches builds to an agent.Builder with bounded parallelism, records
// every outcome in the store and escalates tickets that keep failing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/agent"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/debug"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/scheduler"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/storage"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

// Defaults
const (
	DefaultMaxParallel          = 3
	DefaultMaxRetries           = 3
	DefaultTicketTimeout        = 30 * time.Minute
	DefaultConservativeInterval = time.Minute
)

// Pacing modes
const (
	PacingNormal       = "normal"
	PacingConservative = "conservative"
)

// ErrNotBuildable is returned by DispatchBuild for a ticket that is not
// approved and pending.
var ErrNotBuildable = errors.New("ticket is not buildable")

// LogFunc receives progress lines.
type LogFunc func(format string, args ...any)

// Options configure an Orchestrator. Zero values take the defaults.
type Options struct {
	MaxParallel          int
	MaxRetries           int           // 0 uses the default unless EscalateImmediately is set
	EscalateImmediately  bool          // escalate on the first failure, ignoring MaxRetries
	TicketTimeout        time.Duration // 0 uses the default; negative disables
	MaxIterations        int           // dispatch rounds per Run; 0 is unlimited
	TimeBudget           time.Duration // wall clock per Run; 0 is unlimited
	Pacing               string
	ConservativeInterval time.Duration
	Log                  LogFunc
}

func (o Options) withDefaults() Options {
	if o.MaxParallel <= 0 {
		o.MaxParallel = DefaultMaxParallel
	}
	switch {
	case o.EscalateImmediately || o.MaxRetries < 0:
		o.MaxRetries = 0
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	}
	if o.TicketTimeout == 0 {
		o.TicketTimeout = DefaultTicketTimeout
	}
	if o.Pacing == "" {
		o.Pacing = PacingNormal
	}
	if o.ConservativeInterval <= 0 {
		o.ConservativeInterval = DefaultConservativeInterval
	}
	if o.Pacing == PacingConservative {
		o.MaxParallel = 1
	}
	if o.Log == nil {
		o.Log = debug.Logf
	}
	return o
}

// Orchestrator runs the build and plan passes against a store.
type Orchestrator struct {
	store   *storage.Store
	builder agent.Builder
	planner agent.Planner
	opts    Options
	limiter *rate.Limiter
}

// New creates an orchestrator. planner may be nil when only building.
func New(store *storage.Store, builder agent.Builder, planner agent.Planner, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Pacing == PacingConservative {
		limiter = rate.NewLimiter(rate.Every(opts.ConservativeInterval), 1)
	}
	return &Orchestrator{
		store:   store,
		builder: builder,
		planner: planner,
		opts:    opts,
		limiter: limiter,
	}
}

// Options returns the effective options after defaults.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Outcome is how a dispatched build ended.
type Outcome string

// Outcomes
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetry     Outcome = "retry"     // failed, back to pending
	OutcomeFailed    Outcome = "failed"    // interrupted, left failed for requeue
	OutcomeEscalated Outcome = "escalated" // retry cap exceeded
)

// Result describes one dispatch.
type Result struct {
	TicketID   string
	Outcome    Outcome
	Branch     string
	RetryCount int
	Err        error // the build failure, if any
}

// DispatchBuild claims ticket id, runs the builder under the per-ticket
// timeout and records the outcome. The returned error covers the claim and
// the final store write only; a failed build is reported in Result.Err.
func (o *Orchestrator) DispatchBuild(ctx context.Context, id string) (Result, error) {
	var claimed *types.Ticket
	err := o.store.Apply(ctx, id, func(t *types.Ticket) error {
		if t.Plan.Status != types.PlanApproved || t.Build.Status != types.BuildPending {
			return fmt.Errorf("%w: %s (plan %s, build %s)", ErrNotBuildable, id, t.Plan.Status, t.Build.Status)
		}
		t.Build.Status = types.BuildInProgress
		t.Build.LastError = ""
		claimed = t.Clone()
		return nil
	})
	if err != nil {
		return Result{TicketID: id}, fmt.Errorf("failed to claim %s: %w", id, err)
	}
	o.opts.Log("dispatch %s (attempt %d)", id, claimed.Build.RetryCount+1)

	buildCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.opts.TicketTimeout > 0 {
		buildCtx, cancel = context.WithTimeout(ctx, o.opts.TicketTimeout)
	}
	res, buildErr := o.awaitBuilder(buildCtx, claimed)
	if buildErr == nil && errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		buildErr = buildCtx.Err()
	}
	cancel()

	if buildErr != nil {
		switch {
		case ctx.Err() != nil:
			buildErr = fmt.Errorf("cancelled: %w", buildErr)
		case errors.Is(buildCtx.Err(), context.DeadlineExceeded):
			buildErr = fmt.Errorf("timed out after %s: %w", o.opts.TicketTimeout, buildErr)
		}
	}

	// The outcome is recorded even when ctx is cancelled so nothing is left
	// in_progress without an owner.
	return o.record(context.WithoutCancel(ctx), id, res, buildErr, ctx.Err() != nil)
}

type builderDone struct {
	res agent.BuildResult
	err error
}

// awaitBuilder returns when the builder does or when ctx is done, whichever
// comes first. A builder still running after ctx is done is abandoned and its
// result discarded.
func (o *Orchestrator) awaitBuilder(ctx context.Context, t *types.Ticket) (agent.BuildResult, error) {
	ch := make(chan builderDone, 1)
	go func() {
		res, err := o.runBuilder(ctx, t)
		ch <- builderDone{res: res, err: err}
	}()
	select {
	case d := <-ch:
		return d.res, d.err
	case <-ctx.Done():
		return agent.BuildResult{}, ctx.Err()
	}
}

func (o *Orchestrator) runBuilder(ctx context.Context, t *types.Ticket) (res agent.BuildResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builder panicked: %v", r)
		}
	}()
	return o.builder.Build(ctx, t)
}

func (o *Orchestrator) record(ctx context.Context, id string, res agent.BuildResult, buildErr error, interrupted bool) (Result, error) {
	out := Result{TicketID: id, Err: buildErr}
	err := o.store.Apply(ctx, id, func(t *types.Ticket) error {
		if buildErr == nil {
			branch := res.Branch
			if branch == "" {
				branch = agent.DefaultBranch(t)
			}
			t.Build.Status = types.BuildCompleted
			t.Build.Branch = &branch
			t.Build.LastError = ""
			out.Outcome, out.Branch = OutcomeCompleted, branch
		} else {
			t.Build.RetryCount++
			t.Build.LastError = buildErr.Error()
			switch {
			case t.Build.RetryCount > o.opts.MaxRetries:
				t.Build.Status = types.BuildEscalated
				out.Outcome = OutcomeEscalated
			case interrupted:
				t.Build.Status = types.BuildFailed
				out.Outcome = OutcomeFailed
			default:
				t.Build.Status = types.BuildPending
				out.Outcome = OutcomeRetry
			}
		}
		out.RetryCount = t.Build.RetryCount
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("failed to record build of %s: %w", id, err)
	}

	switch out.Outcome {
	case OutcomeCompleted:
		o.opts.Log("%s completed on %s", id, out.Branch)
	case OutcomeEscalated:
		o.opts.Log("%s escalated after %d failures: %v", id, out.RetryCount, buildErr)
	default:
		o.opts.Log("%s failed (%d/%d): %v", id, out.RetryCount, o.opts.MaxRetries, buildErr)
	}
	return out, nil
}

// RunSummary reports what a Run did.
type RunSummary struct {
	Iterations      int
	Completed       []string
	Retried         []string
	Failed          []string
	Escalated       []string
	Errors          map[string]error // claim or record errors per ticket
	BudgetExhausted bool
}

// Dispatched returns the number of builds that ran to an outcome.
func (s *RunSummary) Dispatched() int {
	return len(s.Completed) + len(s.Retried) + len(s.Failed) + len(s.Escalated)
}

func (s *RunSummary) add(r Result, err error) {
	if err != nil {
		if s.Errors == nil {
			s.Errors = make(map[string]error)
		}
		s.Errors[r.TicketID] = err
		return
	}
	switch r.Outcome {
	case OutcomeCompleted:
		s.Completed = append(s.Completed, r.TicketID)
	case OutcomeRetry:
		s.Retried = append(s.Retried, r.TicketID)
	case OutcomeFailed:
		s.Failed = append(s.Failed, r.TicketID)
	case OutcomeEscalated:
		s.Escalated = append(s.Escalated, r.TicketID)
	}
}

type dispatchDone struct {
	result Result
	err    error
}

// Run dispatches buildable tickets in scope until nothing is buildable and
// nothing is in flight, or a budget runs out. At most MaxParallel builds run
// at once. When ctx is cancelled no new builds start; in-flight builds see the
// cancellation and are recorded failed before Run returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, scope string) (*RunSummary, error) {
	summary := &RunSummary{}
	sem := semaphore.NewWeighted(int64(o.opts.MaxParallel))
	done := make(chan dispatchDone, o.opts.MaxParallel)
	inflight := make(map[string]bool)
	skip := make(map[string]bool) // claim failed this run
	start := time.Now()

	finish := func(d dispatchDone) {
		delete(inflight, d.result.TicketID)
		if d.err != nil {
			skip[d.result.TicketID] = true
			o.opts.Log("%v", d.err)
		}
		summary.add(d.result, d.err)
	}

	for {
		if ctx.Err() == nil && !summary.BudgetExhausted {
			if o.budgetExhausted(summary.Iterations, start) {
				summary.BudgetExhausted = true
				o.opts.Log("budget exhausted after %d rounds; waiting for %d in-flight builds", summary.Iterations, len(inflight))
			} else if n, err := o.dispatchRound(ctx, scope, sem, done, inflight, skip); err != nil {
				o.opts.Log("dispatch stopped: %v", err)
			} else if n > 0 {
				summary.Iterations++
			}
		}

		if len(inflight) == 0 {
			break
		}
		// Wait for at least one build, then collect any others that finished.
		finish(<-done)
	drain:
		for {
			select {
			case d := <-done:
				finish(d)
			default:
				break drain
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// dispatchRound starts builds for buildable tickets while slots are free and
// returns how many it started.
func (o *Orchestrator) dispatchRound(ctx context.Context, scope string, sem *semaphore.Weighted, done chan<- dispatchDone, inflight, skip map[string]bool) (int, error) {
	doc, err := o.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, t := range scheduler.Buildable(doc, scope) {
		if inflight[t.ID] || skip[t.ID] {
			continue
		}
		if !sem.TryAcquire(1) {
			break
		}
		if err := o.limiter.Wait(ctx); err != nil {
			sem.Release(1)
			return started, err
		}
		inflight[t.ID] = true
		started++
		go func(id string) {
			r, err := o.DispatchBuild(ctx, id)
			// Free the slot before reporting so the next round can use it.
			sem.Release(1)
			done <- dispatchDone{result: r, err: err}
		}(t.ID)
	}
	return started, nil
}

func (o *Orchestrator) budgetExhausted(iterations int, start time.Time) bool {
	if o.opts.MaxIterations > 0 && iterations >= o.opts.MaxIterations {
		return true
	}
	if o.opts.TimeBudget > 0 && time.Since(start) >= o.opts.TimeBudget {
		return true
	}
	return false
}
