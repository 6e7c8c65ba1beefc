// Package observability exports turn traces over OpenTelemetry.
//
// Tracing is optional: with no collector endpoint configured the emitter is
// a no-op and the pipeline runs exactly the same. Trace emission is always
// best-effort; it never fails or delays a turn.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config for the OTLP trace exporter.
type Config struct {
	// Endpoint is the collector's OTLP HTTP host:port. Empty disables
	// tracing entirely.
	Endpoint string
	// ServiceName tags exported spans (default: folio).
	ServiceName string
	// Insecure skips TLS, for localhost collectors.
	Insecure bool
}

// Setup creates a tracer provider exporting to the configured collector.
// It returns the tracer plus a shutdown function that flushes pending
// spans. With no endpoint it returns a no-op tracer and tracing stays off.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (trace.Tracer, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noShutdown := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop.NewTracerProvider().Tracer("folio"), noShutdown, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "folio"
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		// A broken exporter must not block startup.
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop.NewTracerProvider().Tracer("folio"), noShutdown, nil
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	logger.Debug("tracing enabled", "endpoint", cfg.Endpoint, "service", serviceName)
	return tp.Tracer("folio"), tp.Shutdown, nil
}
