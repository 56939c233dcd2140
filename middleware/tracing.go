package middleware

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BranchIntl/ojsworker/job"
)

const tracerName = "github.com/BranchIntl/ojsworker"

// Tracing wraps each dispatch in a span from the global TracerProvider. With
// no provider configured the noop tracer makes this a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return Func(func(ctx *job.Context, next Next) (any, error) {
		j := ctx.Job
		spanCtx, span := tracer.Start(ctx.Context(), "ojs.job.process",
			trace.WithAttributes(
				attribute.String("ojs.job.id", j.ID),
				attribute.String("ojs.job.type", j.Type),
				attribute.String("ojs.queue", j.Queue),
				attribute.Int("ojs.job.attempt", j.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		restore := ctx.SetContext(spanCtx)
		defer restore()

		result, err := next()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return result, err
	})
}
