package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/states"
	"github.com/pavitrk/retirepipe/internal/testkit"
	"github.com/pavitrk/retirepipe/internal/worker"
)

const queueName = "retirements:ready"

type runnerFunc func(ctx context.Context, recordID string) (retirement.Record, error)

func (f runnerFunc) Run(ctx context.Context, recordID string) (retirement.Record, error) {
	return f(ctx, recordID)
}

func setup(t *testing.T) (*testkit.MemoryStore, *testkit.MemoryQueue, retirement.Record) {
	t.Helper()
	reg, err := states.NewRegistry(states.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	store := testkit.NewMemoryStore(reg)
	rec, err := store.CreateRetirement(context.Background(), retirement.Snapshot{
		UserID: "u1", Username: "alice", Email: "alice@example.com", Name: "Alice Doe",
	})
	if err != nil {
		t.Fatalf("CreateRetirement: %v", err)
	}
	return store, testkit.NewMemoryQueue(), rec
}

func TestProcessOneRunsUnderLease(t *testing.T) {
	store, queue, rec := setup(t)
	loop := worker.NewLoop(store, queue, queueName, "w1", time.Minute, 1, nil)

	var ran bool
	runner := runnerFunc(func(ctx context.Context, recordID string) (retirement.Record, error) {
		ran = true
		if recordID != rec.ID {
			t.Errorf("runner got record %s, want %s", recordID, rec.ID)
		}
		// The lease is held while the runner executes.
		ok, err := store.AcquireLease(ctx, recordID, "other", time.Now().UTC(), time.Minute)
		if err != nil || ok {
			t.Errorf("lease not held during run: ok=%v err=%v", ok, err)
		}
		return store.Get(ctx, recordID)
	})

	if err := loop.ProcessOne(context.Background(), rec.ID, runner); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !ran {
		t.Fatal("runner never invoked")
	}

	// The lease is released afterwards.
	ok, err := store.AcquireLease(context.Background(), rec.ID, "other", time.Now().UTC(), time.Minute)
	if err != nil || !ok {
		t.Fatalf("lease not released: ok=%v err=%v", ok, err)
	}
}

func TestProcessOneSkipsHeldLease(t *testing.T) {
	store, queue, rec := setup(t)
	loop := worker.NewLoop(store, queue, queueName, "w1", time.Minute, 1, nil)

	ok, err := store.AcquireLease(context.Background(), rec.ID, "other", time.Now().UTC(), time.Minute)
	if err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}

	runner := runnerFunc(func(ctx context.Context, recordID string) (retirement.Record, error) {
		t.Error("runner invoked despite held lease")
		return retirement.Record{}, nil
	})
	if err := loop.ProcessOne(context.Background(), rec.ID, runner); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
}

func TestProcessOneRequeuesOnInterruption(t *testing.T) {
	store, queue, rec := setup(t)
	loop := worker.NewLoop(store, queue, queueName, "w1", time.Minute, 1, nil)

	runner := runnerFunc(func(ctx context.Context, recordID string) (retirement.Record, error) {
		return retirement.Record{}, context.Canceled
	})
	if err := loop.ProcessOne(context.Background(), rec.ID, runner); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	id, ok, err := queue.Dequeue(context.Background(), queueName, 10*time.Millisecond)
	if err != nil || !ok || id != rec.ID {
		t.Fatalf("record not requeued after interruption: id=%q ok=%v err=%v", id, ok, err)
	}

	// The interruption is visible in the record's audit trail.
	got, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var noted bool
	for _, resp := range got.Responses {
		if resp.Note == "interrupted, requeued for resume" {
			noted = true
		}
	}
	if !noted {
		t.Fatalf("no interruption note recorded, responses = %+v", got.Responses)
	}
}

func TestLoopDrainsQueue(t *testing.T) {
	store, queue, rec := setup(t)
	loop := worker.NewLoop(store, queue, queueName, "w1", time.Minute, 2, nil)

	if err := queue.Enqueue(context.Background(), queueName, rec.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	processed := make(chan string, 1)
	runner := runnerFunc(func(ctx context.Context, recordID string) (retirement.Record, error) {
		processed <- recordID
		return store.Get(ctx, recordID)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, runner) }()

	select {
	case id := <-processed:
		if id != rec.ID {
			t.Errorf("processed %s, want %s", id, rec.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("queue entry never processed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestReaperRequeuesExpiredLeases(t *testing.T) {
	store, queue, rec := setup(t)
	now := time.Now().UTC()

	ok, err := store.AcquireLease(context.Background(), rec.ID, "dead-worker", now.Add(-10*time.Minute), time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLease: ok=%v err=%v", ok, err)
	}

	reaper := worker.NewReaper(store, queue, queueName)
	n, err := reaper.RequeueExpiredLeases(context.Background(), now)
	if err != nil {
		t.Fatalf("RequeueExpiredLeases: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d, want 1", n)
	}

	id, ok, err := queue.Dequeue(context.Background(), queueName, 10*time.Millisecond)
	if err != nil || !ok || id != rec.ID {
		t.Fatalf("expired record not requeued: id=%q ok=%v err=%v", id, ok, err)
	}

	// The lease was reset, so a live worker can take the record.
	ok, err = store.AcquireLease(context.Background(), rec.ID, "w1", now, time.Minute)
	if err != nil || !ok {
		t.Fatalf("lease not reset: ok=%v err=%v", ok, err)
	}
}

func TestReaperRequeuesStalled(t *testing.T) {
	store, queue, rec := setup(t)

	reaper := worker.NewReaper(store, queue, queueName)

	// A freshly modified record is not stalled.
	n, err := reaper.RequeueStalled(context.Background(), time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RequeueStalled: %v", err)
	}
	if n != 0 {
		t.Fatalf("requeued %d fresh records, want 0", n)
	}

	// With the cutoff in the future the record counts as stalled.
	n, err = reaper.RequeueStalled(context.Background(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("RequeueStalled: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d, want 1", n)
	}
	id, ok, err := queue.Dequeue(context.Background(), queueName, 10*time.Millisecond)
	if err != nil || !ok || id != rec.ID {
		t.Fatalf("stalled record not requeued: id=%q ok=%v err=%v", id, ok, err)
	}
}
