package connection

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startSpan opens the span for one logical API call. The span wraps the
// whole call including every retry attempt and is ended by the caller
// regardless of outcome.
func (c *Connection) startSpan(
	ctx context.Context,
	req *Request,
	invocationID string,
	retryEnabled bool,
) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.Path),
		attribute.String("gccl-invocation-id", invocationID),
		attribute.Bool("api.retry_enabled", retryEnabled),
	}
	return c.tracer.Start(ctx, "Connection.APIRequest "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// recordRetryEvent adds a span event for one scheduled retry.
func recordRetryEvent(span trace.Span, attempt int, err error, next time.Duration) {
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", next.Milliseconds()),
	}
	if err != nil {
		reason := err.Error()
		if len(reason) > 80 {
			reason = reason[:80] + "..."
		}
		attrs = append(attrs, attribute.String("retry.reason", reason))
		span.RecordError(err)
	}
	span.AddEvent("api.retry", trace.WithAttributes(attrs...))
}

// finishSpan records the terminal outcome on the span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
