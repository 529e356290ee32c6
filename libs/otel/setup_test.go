package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("OTEL_ENABLED", "")
	cfg := ConfigFromEnv("booking-service")
	if cfg.Collector != "collector:4317" || cfg.Ratio != 0.25 || cfg.Service != "booking-service" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	cfg = ConfigFromEnv("booking-service")
	if cfg.Collector != "" || cfg.Ratio != 1 {
		t.Fatalf("expected disabled export with default ratio, got %+v", cfg)
	}
}

func TestSetupWithoutCollector(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Service: "reminder-service"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
