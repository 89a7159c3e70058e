package engine

import (
	"context"
	"fmt"

	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
)

// Executor performs one subsystem's erasure or anonymization. It is
// bound to exactly one working state and reports where the record goes
// once the effect has landed; it never picks the next state itself.
//
// Execute must be idempotent: re-applying the erasure to already-erased
// data succeeds trivially. The driver may crash between a successful
// Execute and the committed transition, in which case the step is
// re-run on resume rather than skipped.
//
// A nil error is success. Errors are classified by the retry package:
// retryable failures are re-attempted with backoff, everything else is
// fatal and moves the record to the failure dead end.
type Executor interface {
	State() string
	DoneState() string
	Execute(ctx context.Context, rec retirement.Record) (note string, err error)
}

// Set holds the executors registered for this deployment, keyed by
// working state. States without an executor are skipped by the driver
// when optional, which is how feature-flagged subsystems are disabled.
type Set struct {
	byState map[string]Executor
}

func NewSet(reg *states.Registry, executors ...Executor) (*Set, error) {
	byState := make(map[string]Executor, len(executors))
	for _, e := range executors {
		st, err := reg.ByName(e.State())
		if err != nil {
			return nil, fmt.Errorf("executor %s: %w", e.State(), err)
		}
		if st.DeadEnd() {
			return nil, fmt.Errorf("executor %s bound to dead-end state", e.State())
		}
		done, err := reg.ByName(e.DoneState())
		if err != nil {
			return nil, fmt.Errorf("executor %s done state: %w", e.State(), err)
		}
		if done.ExecutionOrder <= st.ExecutionOrder {
			return nil, fmt.Errorf("executor %s: done state %s does not follow %s",
				e.State(), e.DoneState(), e.State())
		}
		if _, dup := byState[e.State()]; dup {
			return nil, fmt.Errorf("duplicate executor for state %s", e.State())
		}
		byState[e.State()] = e
	}
	return &Set{byState: byState}, nil
}

func (s *Set) ForState(name string) (Executor, bool) {
	e, ok := s.byState[name]
	return e, ok
}
