package retirement

import (
	"fmt"

	"github.com/pavitrk/retirepipe/internal/states"
)

// ValidateTransition decides whether moving a record from current to
// target is legal. The rules, in order:
//
//   - A record at a dead-end state never moves again.
//   - Re-attempting the same state is legal (idempotent retry).
//   - A failure dead end (ERRORED, ABORTED) is reachable from any
//     non-dead-end state, out of execution order.
//   - Everything else moves strictly forward by execution order.
//     Required pipeline states can never be jumped over. Non-required
//     states in between may be jumped only when allowSkip is set.
//
// Dead-end states sit at the top of the execution order and are
// outcomes, not steps, so they are ignored when checking what a forward
// move jumps over.
func ValidateTransition(reg *states.Registry, current, target states.State, allowSkip bool) error {
	if current.DeadEnd() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, current.Name)
	}
	if target.Name == current.Name {
		return nil
	}
	if target.Kind == states.DeadEndFailure {
		return nil
	}
	if target.ExecutionOrder <= current.ExecutionOrder {
		return fmt.Errorf("%w: %s -> %s moves backwards", ErrInvalidTransition, current.Name, target.Name)
	}
	for _, s := range reg.Between(current.ExecutionOrder, target.ExecutionOrder) {
		if s.DeadEnd() {
			continue
		}
		if s.Required {
			return fmt.Errorf("%w: %s -> %s skips required state %s",
				ErrInvalidTransition, current.Name, target.Name, s.Name)
		}
		if !allowSkip {
			return fmt.Errorf("%w: %s -> %s skips %s without skip being requested",
				ErrInvalidTransition, current.Name, target.Name, s.Name)
		}
	}
	return nil
}
