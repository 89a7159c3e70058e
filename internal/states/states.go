package states

import (
	"errors"
	"fmt"
	"sort"
)

var ErrStateNotFound = errors.New("state not found")

// Kind classifies a state. Dead-end kinds permit no further transition.
type Kind string

const (
	Normal         Kind = "NORMAL"
	DeadEndSuccess Kind = "DEAD_END_SUCCESS"
	DeadEndFailure Kind = "DEAD_END_FAILURE"
)

func (k Kind) DeadEnd() bool {
	return k == DeadEndSuccess || k == DeadEndFailure
}

// State is one step or outcome in the retirement pipeline. States are
// totally ordered by ExecutionOrder, which is the only legal forward
// direction. Required states must be passed through on the way to the
// success dead end; non-required states are skippable.
type State struct {
	Name           string
	ExecutionOrder int
	Kind           Kind
	Required       bool
}

func (s State) DeadEnd() bool { return s.Kind.DeadEnd() }

// Registry is the closed catalog of states, built once at startup and
// read-only afterwards. It is safe for concurrent use without locking.
type Registry struct {
	byName  map[string]State
	ordered []State
}

func NewRegistry(catalog []State) (*Registry, error) {
	if len(catalog) == 0 {
		return nil, errors.New("state catalog is empty")
	}

	byName := make(map[string]State, len(catalog))
	byOrder := make(map[int]string, len(catalog))
	ordered := make([]State, 0, len(catalog))

	var haveSuccess, haveFailure bool
	for _, s := range catalog {
		if s.Name == "" {
			return nil, errors.New("state with empty name")
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate state name %q", s.Name)
		}
		if prev, dup := byOrder[s.ExecutionOrder]; dup {
			return nil, fmt.Errorf("states %q and %q share execution order %d", prev, s.Name, s.ExecutionOrder)
		}
		switch s.Kind {
		case Normal, DeadEndSuccess, DeadEndFailure:
		default:
			return nil, fmt.Errorf("state %q has unknown kind %q", s.Name, s.Kind)
		}
		if s.Kind == DeadEndSuccess {
			haveSuccess = true
		}
		if s.Kind == DeadEndFailure {
			haveFailure = true
		}
		byName[s.Name] = s
		byOrder[s.ExecutionOrder] = s.Name
		ordered = append(ordered, s)
	}

	if !haveSuccess {
		return nil, errors.New("catalog has no success dead-end state")
	}
	if !haveFailure {
		return nil, errors.New("catalog has no failure dead-end state")
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ExecutionOrder < ordered[j].ExecutionOrder
	})
	if ordered[0].DeadEnd() {
		return nil, fmt.Errorf("initial state %q must not be a dead end", ordered[0].Name)
	}

	return &Registry{byName: byName, ordered: ordered}, nil
}

// Initial returns the state with the globally lowest execution order.
func (r *Registry) Initial() State {
	return r.ordered[0]
}

func (r *Registry) ByName(name string) (State, error) {
	s, ok := r.byName[name]
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrStateNotFound, name)
	}
	return s, nil
}

// OrderedByExecution returns all states in execution order.
func (r *Registry) OrderedByExecution() []State {
	out := make([]State, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// NextAfter returns the first state with an execution order strictly
// greater than order, or false when none remains.
func (r *Registry) NextAfter(order int) (State, bool) {
	for _, s := range r.ordered {
		if s.ExecutionOrder > order {
			return s, true
		}
	}
	return State{}, false
}

// Between returns the states with execution order strictly between from
// and to, in execution order.
func (r *Registry) Between(from, to int) []State {
	var out []State
	for _, s := range r.ordered {
		if s.ExecutionOrder > from && s.ExecutionOrder < to {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) DeadEnds() []State {
	var out []State
	for _, s := range r.ordered {
		if s.DeadEnd() {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) NonDeadEnds() []State {
	var out []State
	for _, s := range r.ordered {
		if !s.DeadEnd() {
			out = append(out, s)
		}
	}
	return out
}
