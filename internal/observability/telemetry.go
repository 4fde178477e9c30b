// Package observability wires OpenTelemetry tracing.
//
// Spans are exported over OTLP HTTP to a local collector or agent, which
// owns authentication and forwarding. The exporter endpoint defaults to
// localhost:4318; an unreachable collector degrades to disabled tracing
// rather than failing startup.
package observability

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for the trace exporter.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint, host:port (default: localhost:4318)
	Endpoint string
	// ServiceName labels the service in the tracing backend
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
}

// DefaultEndpoint is the standard local OTLP HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// Setup installs a global tracer provider exporting to the configured OTLP
// endpoint and returns a shutdown function that flushes pending spans.
// An exporter construction failure disables tracing and returns a no-op
// shutdown; the service runs untraceable but runs.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// The SDK's resource detection picks these up for every span
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	slog.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)
	return tp.Shutdown, nil
}
