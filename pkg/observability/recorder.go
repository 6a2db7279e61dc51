package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records the gateway's operational measurements. All methods are
// nil-safe so callers never have to guard against a disabled setup.
type Metrics interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, size int)
	RecordStage(ctx context.Context, stage string, fanOut int, duration time.Duration, err error)
	RecordServiceCall(ctx context.Context, service, path string, duration time.Duration, err error)
	RecordRetry(ctx context.Context, service string)
}

type PrometheusMetrics struct {
	httpDuration  metric.Float64Histogram
	httpRequests  metric.Int64Counter
	httpErrors    metric.Int64Counter
	httpRespBytes metric.Int64Counter

	stageDuration metric.Float64Histogram
	stageRuns     metric.Int64Counter
	stageErrors   metric.Int64Counter
	stageFanOut   metric.Int64Counter

	callDuration metric.Float64Histogram
	callsTotal   metric.Int64Counter
	callErrors   metric.Int64Counter
	callRetries  metric.Int64Counter
}

func NewPrometheusMetrics(
	httpDuration metric.Float64Histogram,
	httpRequests metric.Int64Counter,
	httpErrors metric.Int64Counter,
	httpRespBytes metric.Int64Counter,
	stageDuration metric.Float64Histogram,
	stageRuns metric.Int64Counter,
	stageErrors metric.Int64Counter,
	stageFanOut metric.Int64Counter,
	callDuration metric.Float64Histogram,
	callsTotal metric.Int64Counter,
	callErrors metric.Int64Counter,
	callRetries metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		httpDuration:  httpDuration,
		httpRequests:  httpRequests,
		httpErrors:    httpErrors,
		httpRespBytes: httpRespBytes,
		stageDuration: stageDuration,
		stageRuns:     stageRuns,
		stageErrors:   stageErrors,
		stageFanOut:   stageFanOut,
		callDuration:  callDuration,
		callsTotal:    callsTotal,
		callErrors:    callErrors,
		callRetries:   callRetries,
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, size int) {
	if m == nil || m.httpDuration == nil || m.httpRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))

	if size > 0 && m.httpRespBytes != nil {
		m.httpRespBytes.Add(ctx, int64(size), metric.WithAttributes(attrs...))
	}

	if status >= 400 && m.httpErrors != nil {
		m.httpErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordStage(ctx context.Context, stage string, fanOut int, duration time.Duration, err error) {
	if m == nil || m.stageDuration == nil || m.stageRuns == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
	}

	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.stageRuns.Add(ctx, 1, metric.WithAttributes(attrs...))

	if fanOut > 0 && m.stageFanOut != nil {
		m.stageFanOut.Add(ctx, int64(fanOut), metric.WithAttributes(attrs...))
	}

	if err != nil && m.stageErrors != nil {
		m.stageErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordServiceCall(ctx context.Context, service, path string, duration time.Duration, err error) {
	if m == nil || m.callDuration == nil || m.callsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("path", path),
	}

	m.callDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.callsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.callErrors != nil {
		m.callErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordRetry(ctx context.Context, service string) {
	if m == nil || m.callRetries == nil {
		return
	}

	m.callRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
