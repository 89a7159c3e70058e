package worker

import (
	"context"
	"time"

	"github.com/pavitrk/retirepipe/internal/retirement"
)

// Worker holds the per-record lease that keeps two workers from racing
// the same retirement and double-applying a destructive step.
type Worker struct {
	store      retirement.Store
	owner      string
	leaseFor   time.Duration
	renewEvery time.Duration
}

func New(store retirement.Store, owner string, leaseFor time.Duration) *Worker {
	return &Worker{
		store:      store,
		owner:      owner,
		leaseFor:   leaseFor,
		renewEvery: leaseFor / 2,
	}
}

func (w *Worker) Acquire(ctx context.Context, recordID string, now time.Time) (bool, error) {
	return w.store.AcquireLease(ctx, recordID, w.owner, now, w.leaseFor)
}

func (w *Worker) Renew(ctx context.Context, recordID string, now time.Time) (bool, error) {
	return w.store.RenewLease(ctx, recordID, w.owner, now, w.leaseFor)
}

func (w *Worker) Release(ctx context.Context, recordID string) error {
	return w.store.ResetLease(ctx, recordID)
}

// Heartbeat renews the lease until ctx is cancelled.
func (w *Worker) Heartbeat(ctx context.Context, recordID string) error {
	ticker := time.NewTicker(w.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Renew(ctx, recordID, time.Now().UTC()); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
