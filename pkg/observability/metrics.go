package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics creates the Prometheus-backed metric instruments. The exporter
// registers with the default prometheus registry, so the /metrics handler
// picks everything up without extra wiring.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("helio")

	httpDuration, err := meter.Float64Histogram(
		"helio_http_request_duration_seconds",
		metric.WithDescription("Inbound HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"helio_http_requests_total",
		metric.WithDescription("Total inbound HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	httpErrors, err := meter.Int64Counter(
		"helio_http_errors_total",
		metric.WithDescription("Total inbound HTTP requests answered with 4xx/5xx"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http errors counter: %w", err)
	}

	httpRespBytes, err := meter.Int64Counter(
		"helio_http_response_bytes_total",
		metric.WithDescription("Total bytes written in HTTP responses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http response bytes counter: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"helio_pipeline_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds, fan-out included"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	stageRuns, err := meter.Int64Counter(
		"helio_pipeline_stage_runs_total",
		metric.WithDescription("Total pipeline stage executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage runs counter: %w", err)
	}

	stageErrors, err := meter.Int64Counter(
		"helio_pipeline_stage_errors_total",
		metric.WithDescription("Total failed pipeline stage executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage errors counter: %w", err)
	}

	stageFanOut, err := meter.Int64Counter(
		"helio_pipeline_fan_out_tasks_total",
		metric.WithDescription("Total per-window fan-out tasks launched"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fan-out counter: %w", err)
	}

	callDuration, err := meter.Float64Histogram(
		"helio_service_call_duration_seconds",
		metric.WithDescription("Downstream service call duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service call duration histogram: %w", err)
	}

	callsTotal, err := meter.Int64Counter(
		"helio_service_calls_total",
		metric.WithDescription("Total downstream service calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service calls counter: %w", err)
	}

	callErrors, err := meter.Int64Counter(
		"helio_service_call_errors_total",
		metric.WithDescription("Total failed downstream service calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service call errors counter: %w", err)
	}

	callRetries, err := meter.Int64Counter(
		"helio_service_call_retries_total",
		metric.WithDescription("Total downstream call retry attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service retries counter: %w", err)
	}

	return NewPrometheusMetrics(
		httpDuration,
		httpRequests,
		httpErrors,
		httpRespBytes,
		stageDuration,
		stageRuns,
		stageErrors,
		stageFanOut,
		callDuration,
		callsTotal,
		callErrors,
		callRetries,
	), nil
}
