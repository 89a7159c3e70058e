package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pavitrk/retirepipe/internal/metrics"
	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/retry"
	"github.com/pavitrk/retirepipe/internal/states"
)

// Engine owns state transitions. It decides the next state for a
// record, invokes the bound executor, commits the transition on
// success, and absorbs retryable failures up to the retry budget
// before escalating to the failure dead end.
type Engine struct {
	store  retirement.Store
	execs  *Set
	policy retry.Policy
	logger *slog.Logger
}

func New(store retirement.Store, execs *Set, policy retry.Policy, logger *slog.Logger) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		execs:  execs,
		policy: policy,
		logger: logger,
	}, nil
}

// Run drives one record forward until it reaches a dead end or ctx is
// cancelled. The caller must hold the record's lease for the duration.
func (e *Engine) Run(ctx context.Context, recordID string) (retirement.Record, error) {
	rec, err := e.store.Get(ctx, recordID)
	if err != nil {
		return retirement.Record{}, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		next, done, err := e.Step(ctx, rec)
		if err != nil {
			return rec, err
		}
		rec = next
		if done {
			return rec, nil
		}
	}
}

// Step applies one unit of progress: either runs the executor for the
// record's current working state, or moves the record forward to the
// next state that has work (or to the success dead end when none
// remains). It returns the updated record and whether the record is
// now at a dead end.
func (e *Engine) Step(ctx context.Context, rec retirement.Record) (retirement.Record, bool, error) {
	reg := e.store.Registry()
	current, err := reg.ByName(rec.CurrentState)
	if err != nil {
		return rec, false, err
	}
	if current.DeadEnd() {
		return rec, true, nil
	}

	if exec, ok := e.execs.ForState(current.Name); ok {
		return e.runExecutor(ctx, rec, current, exec)
	}

	target, note := e.nextTarget(reg, current)
	return e.advance(ctx, rec, target, note)
}

// nextTarget picks the next state with a registered executor after
// current; when none remains the pipeline is finished and the record
// goes to the success dead end. Optional executor-less states in
// between are skipped.
func (e *Engine) nextTarget(reg *states.Registry, current states.State) (string, string) {
	order := current.ExecutionOrder
	for {
		next, ok := reg.NextAfter(order)
		if !ok || next.DeadEnd() {
			break
		}
		if _, bound := e.execs.ForState(next.Name); bound {
			return next.Name, "beginning " + next.Name
		}
		order = next.ExecutionOrder
	}
	for _, s := range reg.DeadEnds() {
		if s.Kind == states.DeadEndSuccess {
			return s.Name, "retirement complete"
		}
	}
	// NewRegistry guarantees a success dead end exists.
	return "", ""
}

func (e *Engine) runExecutor(ctx context.Context, rec retirement.Record, current states.State, exec Executor) (retirement.Record, bool, error) {
	stepCtx, end, err := e.startStepSpan(ctx, &rec, current.Name)
	if err != nil {
		return rec, false, err
	}
	defer end()

	metrics.IncStepAttempt(current.Name)
	start := time.Now()
	note, execErr := exec.Execute(stepCtx, rec)
	metrics.ObserveStepRuntime(current.Name, time.Since(start).Seconds())

	if execErr == nil {
		metrics.IncStepSuccess(current.Name)
		return e.advance(ctx, rec, exec.DoneState(), note)
	}

	class := retry.Classify(execErr)
	metrics.IncStepFailure(current.Name, string(class))

	if class == retry.ClassRetryable && rec.Attempts+1 < e.policy.MaxAttempts {
		// No transition: the record stays at its working state and the
		// failure is recorded for audit. The same-state re-attempt
		// bumps the persisted attempt counter so a crash mid-backoff
		// does not reset the budget.
		attemptNote := fmt.Sprintf("attempt %d failed: %v", rec.Attempts+1, execErr)
		updated, err := e.store.Advance(ctx, rec.ID, current.Name, attemptNote, false)
		if err != nil {
			if errors.Is(err, retirement.ErrAlreadyTerminal) {
				return e.reload(ctx, rec.ID)
			}
			return rec, false, err
		}
		e.logger.Warn("step failed, backing off",
			"record_id", rec.ID, "state", current.Name,
			"attempt", updated.Attempts, "err", execErr)

		// Fresh rng per delay: records back off on concurrent goroutines
		// and *rand.Rand is not safe for shared use.
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		if err := e.wait(ctx, retry.NextDelay(updated.Attempts, e.policy, rng)); err != nil {
			return updated, false, err
		}
		return updated, false, nil
	}

	reason := fmt.Sprintf("fatal failure at %s: %v", current.Name, execErr)
	if class == retry.ClassRetryable {
		reason = fmt.Sprintf("retry budget exhausted at %s after %d attempts: %v",
			current.Name, rec.Attempts+1, execErr)
	}
	e.logger.Error("step failed permanently",
		"record_id", rec.ID, "state", current.Name, "err", execErr)
	return e.advance(ctx, rec, states.StateErrored, reason)
}

// advance commits a transition. A record that reached a dead end
// concurrently (operator abort) wins: the in-flight result is
// discarded and the record is reloaded as-is.
func (e *Engine) advance(ctx context.Context, rec retirement.Record, target, note string) (retirement.Record, bool, error) {
	updated, err := e.store.Advance(ctx, rec.ID, target, note, true)
	if err != nil {
		if errors.Is(err, retirement.ErrAlreadyTerminal) {
			e.logger.Info("discarding result, record reached dead end concurrently",
				"record_id", rec.ID, "target", target)
			return e.reload(ctx, rec.ID)
		}
		return rec, false, err
	}

	metrics.IncTransition(target)
	reg := e.store.Registry()
	st, err := reg.ByName(updated.CurrentState)
	if err != nil {
		return updated, false, err
	}
	if st.DeadEnd() {
		metrics.IncFinished(st.Name)
		e.logger.Info("retirement finished",
			"record_id", updated.ID, "outcome", st.Name, "last_state", updated.LastState)
		return updated, true, nil
	}
	return updated, false, nil
}

func (e *Engine) reload(ctx context.Context, id string) (retirement.Record, bool, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return retirement.Record{}, false, err
	}
	st, err := e.store.Registry().ByName(rec.CurrentState)
	if err != nil {
		return rec, false, err
	}
	return rec, st.DeadEnd(), nil
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
