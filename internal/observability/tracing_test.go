package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestStdoutTracingExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "satops-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Output:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := StartSpan(ctx, "passes.ComputeOverpasses", "satellite", "sat-iss", attribute.String("ground_station_id", "gs-london"))
	EndSpan(span, errors.New("no orbital elements"))
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"passes.ComputeOverpasses", "satellite.id", "sat-iss", "no orbital elements", "satops-test"} {
		if !strings.Contains(out, want) {
			t.Fatalf("exported span lacks %q:\n%s", want, out)
		}
	}
}

func TestDisabledTracingIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := StartSpan(context.Background(), "scheduler.transmit", "flight_plan", "fp-1")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a recording span")
	}
	EndSpan(span, nil)
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil || !strings.Contains(err.Error(), "zipkin") {
		t.Fatalf("err = %v", err)
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("SATOPS_TRACING_ENABLED", "TRUE")
	t.Setenv("SATOPS_TRACING_EXPORTER", "OTLP")
	t.Setenv("SATOPS_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("SATOPS_TRACING_SAMPLE_RATIO", "1.5")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SampleRatio != 1 || cfg.ServiceName != "satops-server" {
		t.Fatalf("out-of-range ratio or default service not handled: %+v", cfg)
	}
}
