package connection

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the instruments recorded per logical API call. All record
// helpers tolerate a nil receiver so a failed instrument registration
// degrades to no-op rather than breaking requests.
type metrics struct {
	requestDuration  metric.Float64Histogram
	responseBodySize metric.Int64Histogram
	requestErrors    metric.Int64Counter
	retryAttempts    metric.Int64Counter
	retryExhausted   metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"objstore.client.request.duration",
		metric.WithDescription("Duration of logical API requests, retries included, in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
		),
	)
	if err != nil {
		return nil, err
	}

	m.responseBodySize, err = meter.Int64Histogram(
		"objstore.client.response.body.size",
		metric.WithDescription("Size of API response bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(
			0, 1024, 10*1024, 100*1024, 1024*1024, 10*1024*1024, 100*1024*1024,
		),
	)
	if err != nil {
		return nil, err
	}

	m.requestErrors, err = meter.Int64Counter(
		"objstore.client.request.errors",
		metric.WithDescription("Logical API requests that failed after all attempts"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryAttempts, err = meter.Int64Counter(
		"objstore.client.retry.attempts",
		metric.WithDescription("Retry attempts across all API requests"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"objstore.client.retry.exhausted",
		metric.WithDescription("API requests that exhausted their retry budget"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func methodAttrs(method string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("http.request.method", method)}
}

func (m *metrics) recordRequest(ctx context.Context, method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(methodAttrs(method)...)
	m.requestDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.requestErrors.Add(ctx, 1, attrs)
	}
}

func (m *metrics) recordBodySize(ctx context.Context, method string, size int) {
	if m == nil || size <= 0 {
		return
	}
	m.responseBodySize.Record(ctx, int64(size), metric.WithAttributes(methodAttrs(method)...))
}

func (m *metrics) recordRetryAttempt(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(methodAttrs(method)...))
}

func (m *metrics) recordRetryExhausted(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1, metric.WithAttributes(methodAttrs(method)...))
}
