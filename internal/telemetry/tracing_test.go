package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupTracingDisabled(t *testing.T) {
	for _, exporter := range []string{"", "none", " NONE "} {
		shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: exporter}, nil)
		if err != nil {
			t.Fatalf("exporter %q: unexpected error %v", exporter, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("exporter %q: shutdown: %v", exporter, err)
		}
	}
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected missing endpoint error, got %v", err)
	}
}

func TestSetupTracingStdoutFlushesOnShutdown(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	shutdown, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName:    "earthworm-test",
		ServiceVersion: "9.9.9",
		Exporter:       "stdout",
		Output:         &out,
	}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "probe-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(out.String(), "probe-span") {
		t.Fatalf("expected exported span in output, got %q", out.String())
	}
	if !strings.Contains(out.String(), "earthworm-test") {
		t.Fatalf("expected service name in output, got %q", out.String())
	}
}
