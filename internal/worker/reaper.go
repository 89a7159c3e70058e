package worker

import (
	"context"
	"time"

	"github.com/pavitrk/retirepipe/internal/retirement"
)

// Reaper is the recovery sweep: it returns crashed or forgotten
// retirements to the queue. Re-running a step that already landed is
// safe, so requeueing is always the right call after a crash.
type Reaper struct {
	store     retirement.Store
	queue     Queue
	queueName string
	limit     int
}

func NewReaper(store retirement.Store, q Queue, queueName string) *Reaper {
	return &Reaper{
		store:     store,
		queue:     q,
		queueName: queueName,
		limit:     100,
	}
}

// RequeueExpiredLeases frees leases whose holder died mid-pipeline and
// puts the records back on the queue.
func (r *Reaper) RequeueExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.store.ListExpiredLeases(ctx, now, r.limit)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.store.ResetLease(ctx, id); err != nil {
			return 0, err
		}
		if err := r.queue.Enqueue(ctx, r.queueName, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// RequeueStalled requeues active unleased records that have not moved
// since the cutoff, covering queue entries lost to a redis restart.
func (r *Reaper) RequeueStalled(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.store.ListStalled(ctx, cutoff, r.limit)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.queue.Enqueue(ctx, r.queueName, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
