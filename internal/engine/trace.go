package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavitrk/retirepipe/internal/retirement"
	"github.com/pavitrk/retirepipe/internal/telemetry"
)

// startStepSpan opens a span for one executor invocation on the
// record's own trace, which survives worker restarts via the persisted
// traceparent. The first step of a retirement mints the trace and
// stores its traceparent on the record.
func (e *Engine) startStepSpan(ctx context.Context, rec *retirement.Record, state string) (context.Context, func(), error) {
	tracer := otel.Tracer("retirepipe/engine")

	spanCtx := telemetry.ContextWithTraceparent(rec.Traceparent)
	spanCtx, span := tracer.Start(spanCtx, "retirement_step",
		trace.WithAttributes(
			attribute.String("record_id", rec.ID),
			attribute.String("state", state),
		),
	)

	if rec.Traceparent == "" {
		tp := telemetry.Traceparent(spanCtx)
		if tp != "" {
			if err := e.store.SetTraceparent(ctx, rec.ID, tp); err != nil {
				span.End()
				return ctx, nil, err
			}
			rec.Traceparent = tp
		}
	}
	return spanCtx, func() { span.End() }, nil
}
