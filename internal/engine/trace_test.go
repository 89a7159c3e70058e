package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/retry"
	"github.com/pavitrk/retirepipe/internal/states"
	"github.com/pavitrk/retirepipe/internal/testkit"
)

func newTracingEngine(t *testing.T) (*Engine, *testkit.MemoryStore, retirement.Record) {
	t.Helper()
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})

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

	execs, err := NewSet(reg)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	pol := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: 5 * time.Millisecond}
	eng, err := New(store, execs, pol, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, store, rec
}

func TestStartStepSpanMintsAndPersistsTraceparent(t *testing.T) {
	eng, store, rec := newTracingEngine(t)
	ctx := context.Background()

	_, end, err := eng.startStepSpan(ctx, &rec, states.StateLockingAccount)
	if err != nil {
		t.Fatalf("startStepSpan: %v", err)
	}
	if end == nil {
		t.Fatal("startStepSpan returned a nil end func")
	}
	end()

	if rec.Traceparent == "" {
		t.Fatal("first step did not mint a traceparent")
	}
	stored, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Traceparent != rec.Traceparent {
		t.Fatalf("persisted traceparent %q, record carries %q", stored.Traceparent, rec.Traceparent)
	}
}

func TestStartStepSpanResumesPersistedTrace(t *testing.T) {
	eng, _, rec := newTracingEngine(t)
	ctx := context.Background()

	_, end, err := eng.startStepSpan(ctx, &rec, states.StateLockingAccount)
	if err != nil {
		t.Fatalf("startStepSpan: %v", err)
	}
	end()
	first := rec.Traceparent

	spanCtx, end, err := eng.startStepSpan(ctx, &rec, states.StateRetiringCredentials)
	if err != nil {
		t.Fatalf("startStepSpan: %v", err)
	}
	end()

	if rec.Traceparent != first {
		t.Fatalf("traceparent rewritten on later step: %q -> %q", first, rec.Traceparent)
	}
	// traceparent is 00-<trace id>-<span id>-<flags>; later steps join
	// the same trace.
	parts := strings.Split(first, "-")
	if len(parts) != 4 {
		t.Fatalf("malformed traceparent %q", first)
	}
	if got := trace.SpanContextFromContext(spanCtx).TraceID().String(); got != parts[1] {
		t.Fatalf("second step trace id = %s, want %s", got, parts[1])
	}
}
