package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pavitrk/retirepipe/internal/retirement"
)

// Runner drives one record to a dead end. Satisfied by *engine.Engine.
type Runner interface {
	Run(ctx context.Context, recordID string) (retirement.Record, error)
}

type Queue interface {
	Enqueue(ctx context.Context, queueName string, recordID string) error
	Dequeue(ctx context.Context, queueName string, wait time.Duration) (string, bool, error)
}

// Loop drains the active-retirement queue: dequeue a record ID, take
// its lease, and drive it with the Runner while a heartbeat keeps the
// lease alive. Concurrency is bounded by the throttler.
type Loop struct {
	worker      *Worker
	store       retirement.Store
	queue       Queue
	queueName   string
	throttler   *Throttler
	logger      *slog.Logger
	dequeueWait time.Duration
}

func NewLoop(store retirement.Store, q Queue, queueName, owner string, leaseFor time.Duration, concurrency int, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		worker:      New(store, owner, leaseFor),
		store:       store,
		queue:       q,
		queueName:   queueName,
		throttler:   NewThrottler(concurrency),
		logger:      logger,
		dequeueWait: time.Second,
	}
}

func (l *Loop) Run(ctx context.Context, runner Runner) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		recordID, ok, err := l.queue.Dequeue(ctx, l.queueName, l.dequeueWait)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		if err := l.throttler.Acquire(ctx); err != nil {
			// Shutting down with a dequeued ID in hand: put it back so
			// another worker picks it up.
			_ = l.queue.Enqueue(context.Background(), l.queueName, recordID)
			return nil
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer l.throttler.Release()

			// Graceful shutdown: once leased, finish the current
			// retirement even if the run context is canceled.
			runCtx := context.WithoutCancel(ctx)
			if err := l.ProcessOne(runCtx, id, runner); err != nil {
				l.logger.Error("processing retirement failed", "record_id", id, "err", err)
			}
		}(recordID)
	}
}

// ProcessOne takes the record's lease and drives it. A record whose
// lease is held elsewhere is skipped; the holder or the sweeper will
// finish it.
func (l *Loop) ProcessOne(ctx context.Context, recordID string, runner Runner) error {
	ok, err := l.worker.Acquire(ctx, recordID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		l.logger.Debug("lease held elsewhere, skipping", "record_id", recordID)
		return nil
	}

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	hbDone := make(chan error, 1)
	go func() {
		hbDone <- l.worker.Heartbeat(hbCtx, recordID)
	}()

	rec, runErr := runner.Run(ctx, recordID)

	stopHeartbeat()
	hbErr := <-hbDone

	if err := l.worker.Release(context.Background(), recordID); err != nil {
		l.logger.Warn("releasing lease failed", "record_id", recordID, "err", err)
	}
	if hbErr != nil {
		return hbErr
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			// Interrupted mid-pipeline: leave an audit note and requeue
			// so the retirement resumes from its committed state.
			noteCtx := context.Background()
			if err := l.store.AppendResponse(noteCtx, recordID, "interrupted, requeued for resume"); err != nil &&
				!errors.Is(err, retirement.ErrAlreadyTerminal) {
				l.logger.Warn("recording interruption failed", "record_id", recordID, "err", err)
			}
			return l.queue.Enqueue(noteCtx, l.queueName, recordID)
		}
		return runErr
	}

	l.logger.Info("retirement processed", "record_id", recordID, "state", rec.CurrentState)
	return nil
}
