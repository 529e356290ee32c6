package otelx

import (
	"context"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const exportTimeout = 3 * time.Second

// Config selects where spans go. An empty Collector keeps tracing in-process: context still
// propagates over HTTP, gRPC and the outbox, but nothing is exported.
type Config struct {
	Service     string
	Environment string
	Collector   string // OTLP gRPC host:port
	Ratio       float64
}

func (c Config) exporting() bool {
	return c.Collector != ""
}

// ConfigFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SAMPLING_RATIO and APP_ENV. OTEL_ENABLED=false
// drops the collector even when one is configured.
func ConfigFromEnv(service string) Config {
	cfg := Config{
		Service:     service,
		Environment: config.String("APP_ENV", "dev"),
		Collector:   config.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Ratio:       1,
	}
	if !config.Bool("OTEL_ENABLED", true) {
		cfg.Collector = ""
	}
	if f, err := strconv.ParseFloat(config.String("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		cfg.Ratio = f
	}
	return cfg
}

// Setup installs W3C trace-context propagation and, with a collector configured, a batching
// OTLP tracer provider. The returned func flushes pending spans.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if !cfg.exporting() {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Collector),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.Service),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("service.namespace", "mentorslots"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Ratio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns a mentorslots-scoped tracer; spans are dropped until Setup installs a provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/md-rashed-zaman/mentorslots/" + name)
}
