package retirement

import (
	"context"
	"time"

	"github.com/pavitrk/retirepipe/internal/states"
)

// Store is the durable home of retirement records and the state catalog.
// Advance is the single authorized mutation entry point for a record's
// state; everything else is bookkeeping or observation.
type Store interface {
	Ping(ctx context.Context) error

	// CreateRetirement creates a record pinned to the initial state with
	// the identity snapshot taken now. It fails with ErrAlreadyInProgress
	// when the user already has a record that is not at a dead end.
	CreateRetirement(ctx context.Context, user Snapshot) (Record, error)

	Get(ctx context.Context, id string) (Record, error)
	GetByUser(ctx context.Context, userID string) (Record, error)

	// Advance validates the transition against the catalog and commits
	// it atomically: last state, current state, audit append and the
	// modified timestamp change together or not at all. A record that
	// reached a dead end concurrently fails with ErrAlreadyTerminal.
	Advance(ctx context.Context, id, target, note string, allowSkip bool) (Record, error)

	// AppendResponse records a diagnostic note against the record's
	// current state without moving it. Dead-end records reject appends
	// with ErrAlreadyTerminal.
	AppendResponse(ctx context.Context, id, note string) error

	SetRetiredIdentity(ctx context.Context, id, username, email string) error
	SetTraceparent(ctx context.Context, id, traceparent string) error

	List(ctx context.Context, f Filter) ([]Record, error)
	Stats(ctx context.Context) (Stats, error)

	// Per-record advisory locking. At most one worker holds a record's
	// lease at a time; the sweeper resets leases that expired.
	AcquireLease(ctx context.Context, id, owner string, now time.Time, leaseFor time.Duration) (bool, error)
	RenewLease(ctx context.Context, id, owner string, now time.Time, leaseFor time.Duration) (bool, error)
	ResetLease(ctx context.Context, id string) error
	ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]string, error)

	// ListStalled returns active unleased records untouched since the
	// cutoff, for recovery sweeps.
	ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	Registry() *states.Registry
}
