package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMetricsRecordingNilSafe(t *testing.T) {
	ctx := context.Background()

	// Uninitialized instruments must not panic
	metrics := &PrometheusMetrics{}

	metrics.RecordHTTPRequest(ctx, "POST", "/v1/simulate", 200, 120*time.Millisecond, 1024)
	metrics.RecordStage(ctx, "obstruction", 3, 80*time.Millisecond, nil)
	metrics.RecordStage(ctx, "encode", 2, 40*time.Millisecond, errors.New("boom"))
	metrics.RecordServiceCall(ctx, "obstruction", "/obstruction_parallel", 30*time.Millisecond, nil)
	metrics.RecordRetry(ctx, "encoder")

	var nilMetrics *PrometheusMetrics
	nilMetrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond, 0)
	nilMetrics.RecordRetry(ctx, "model")
}

func TestGlobalMetrics(t *testing.T) {
	defer SetGlobalMetrics(nil)

	m := &PrometheusMetrics{}
	SetGlobalMetrics(m)

	if got := GetGlobalMetrics(); got != Metrics(m) {
		t.Error("GetGlobalMetrics did not return the registered instance")
	}
}

func TestNoopManager(t *testing.T) {
	m := NoopManager()

	tracer := m.GetTracer("test")
	_, span := tracer.Start(context.Background(), "noop")
	span.End()

	if m.GetMetrics() == nil {
		t.Error("NoopManager metrics should be non-nil")
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestTracingConfigDefaultsAndValidation(t *testing.T) {
	cfg := TracingConfig{}
	cfg.SetDefaults()

	if cfg.ServiceName != DefaultServiceName {
		t.Errorf("default service name = %q, want %q", cfg.ServiceName, DefaultServiceName)
	}
	if cfg.Exporter != "otlp" {
		t.Errorf("default exporter = %q, want otlp", cfg.Exporter)
	}
	if cfg.SamplingRate != DefaultSamplingRate {
		t.Errorf("default sampling rate = %f, want %f", cfg.SamplingRate, DefaultSamplingRate)
	}
	if !cfg.IsInsecure() {
		t.Error("default should be insecure for local development")
	}

	// Disabled config always validates
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled config should validate: %v", err)
	}

	cfg.Enabled = true
	cfg.Exporter = "jaeger"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown exporter should fail validation")
	}

	cfg.Exporter = "stdout"
	cfg.SamplingRate = 2.0
	if err := cfg.Validate(); err == nil {
		t.Error("out-of-range sampling rate should fail validation")
	}
}

func TestDisabledTracerIsNoop(t *testing.T) {
	tp, err := InitGlobalTracer(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitGlobalTracer failed: %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Error("disabled tracing should produce non-recording spans")
	}
}

func TestDisabledMetrics(t *testing.T) {
	m, err := InitMetrics(context.Background(), MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}

	// Must be usable without panicking
	m.RecordHTTPRequest(context.Background(), "POST", "/v1/stats", 200, time.Millisecond, 10)
}
