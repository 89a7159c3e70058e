package retirement

import (
	"errors"
	"testing"

	"github.com/pavitrk/retirepipe/internal/states"
)

func defaultRegistry(t *testing.T) *states.Registry {
	t.Helper()
	reg, err := states.NewRegistry(states.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func mustState(t *testing.T, reg *states.Registry, name string) states.State {
	t.Helper()
	s, err := reg.ByName(name)
	if err != nil {
		t.Fatalf("ByName(%s): %v", name, err)
	}
	return s
}

func TestValidateTransitionForward(t *testing.T) {
	reg := defaultRegistry(t)

	cases := []struct {
		from, to  string
		allowSkip bool
		wantErr   error
	}{
		// Adjacent forward moves never need skip.
		{states.StatePending, states.StateLockingAccount, false, nil},
		{states.StateLockingAccount, states.StateLockingComplete, false, nil},

		// Same-state re-attempt is always legal.
		{states.StateRetiringForums, states.StateRetiringForums, false, nil},

		// Failure dead ends are reachable from anywhere active.
		{states.StatePending, states.StateAborted, false, nil},
		{states.StateRetiringEcom, states.StateErrored, false, nil},

		// Backwards moves are rejected.
		{states.StateLockingComplete, states.StateLockingAccount, true, ErrInvalidTransition},

		// Jumping optional states requires skip to be asked for.
		{states.StatePending, states.StateRetiringForums, false, ErrInvalidTransition},
		{states.StatePending, states.StateRetiringForums, true, nil},

		// The success dead end is only reachable by jumping every
		// optional step, and only with skip requested.
		{states.StatePending, states.StateComplete, false, ErrInvalidTransition},
		{states.StatePending, states.StateComplete, true, nil},
		{states.StatePartnerQueueDone, states.StateComplete, false, nil},
	}

	for _, tc := range cases {
		err := ValidateTransition(reg, mustState(t, reg, tc.from), mustState(t, reg, tc.to), tc.allowSkip)
		if tc.wantErr == nil && err != nil {
			t.Errorf("%s -> %s (skip=%v): unexpected error %v", tc.from, tc.to, tc.allowSkip, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Errorf("%s -> %s (skip=%v): got %v, want %v", tc.from, tc.to, tc.allowSkip, err, tc.wantErr)
		}
	}
}

func TestValidateTransitionFromDeadEnd(t *testing.T) {
	reg := defaultRegistry(t)

	for _, from := range []string{states.StateComplete, states.StateErrored, states.StateAborted} {
		for _, to := range []string{states.StatePending, states.StateComplete, states.StateAborted} {
			err := ValidateTransition(reg, mustState(t, reg, from), mustState(t, reg, to), true)
			if !errors.Is(err, ErrAlreadyTerminal) {
				t.Errorf("%s -> %s: got %v, want ErrAlreadyTerminal", from, to, err)
			}
		}
	}
}

func TestValidateTransitionNeverSkipsRequired(t *testing.T) {
	catalog := []states.State{
		{Name: "START", ExecutionOrder: 1, Kind: states.Normal, Required: true},
		{Name: "MUST_PASS", ExecutionOrder: 2, Kind: states.Normal, Required: true},
		{Name: "OPTIONAL", ExecutionOrder: 3, Kind: states.Normal},
		{Name: "FAILED", ExecutionOrder: 4, Kind: states.DeadEndFailure, Required: true},
		{Name: "DONE", ExecutionOrder: 5, Kind: states.DeadEndSuccess, Required: true},
	}
	reg, err := states.NewRegistry(catalog)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	err = ValidateTransition(reg, mustState(t, reg, "START"), mustState(t, reg, "OPTIONAL"), true)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skipping required state: got %v, want ErrInvalidTransition", err)
	}

	// The failure dead end stays reachable even past a required state.
	err = ValidateTransition(reg, mustState(t, reg, "START"), mustState(t, reg, "FAILED"), false)
	if err != nil {
		t.Fatalf("failure dead end blocked: %v", err)
	}
}
