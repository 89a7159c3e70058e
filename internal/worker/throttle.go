package worker

import (
	"context"
	"sync"

	"github.com/pavitrk/retirepipe/internal/metrics"
)

// Throttler bounds how many retirements are driven concurrently by one
// worker process.
type Throttler struct {
	sem      chan struct{}
	capacity int

	mu       sync.Mutex
	inFlight int
}

func NewThrottler(concurrency int) *Throttler {
	t := &Throttler{capacity: concurrency}
	if concurrency > 0 {
		t.sem = make(chan struct{}, concurrency)
		for i := 0; i < concurrency; i++ {
			t.sem <- struct{}{}
		}
	}
	return t
}

func (t *Throttler) Acquire(ctx context.Context) error {
	if t.sem != nil {
		select {
		case <-t.sem:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.capacity > 0 {
		t.mu.Lock()
		t.inFlight++
		metrics.SetWorkerUtilization(float64(t.inFlight) / float64(t.capacity))
		t.mu.Unlock()
	}
	return nil
}

func (t *Throttler) Release() {
	if t.sem != nil {
		t.sem <- struct{}{}
	}
	if t.capacity > 0 {
		t.mu.Lock()
		if t.inFlight > 0 {
			t.inFlight--
		}
		metrics.SetWorkerUtilization(float64(t.inFlight) / float64(t.capacity))
		t.mu.Unlock()
	}
}
