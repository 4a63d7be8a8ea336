// Package observability exports retrieval spans over OpenTelemetry.
//
// # Architecture Decision: Local Collector Agent Mode
//
// Spans are pushed over OTLP/HTTP to a collector agent on localhost
// instead of a vendor endpoint across the internet:
//
//   - The agent buffers and retries locally, so a flaky uplink does not
//     stall the query path
//   - Localhost roundtrips stay off the retrieval latency budget
//   - The agent holds the vendor credentials; the service only needs an
//     API key when talking to a collector that demands one directly
//
// Genkit already traces every flow and model call through its own
// TracerProvider. Registering one extra span processor there means
// indexing runs and retrieval queries arrive at the collector with no
// per-call instrumentation in this codebase.
//
// # Enable OTLP Ingestion on the Agent
//
// For a collector with an OTLP receiver, listen on the default HTTP
// port:
//
//	otlp_config:
//	  receiver:
//	    protocols:
//	      http:
//	        endpoint: "localhost:4318"
//	  traces:
//	    enabled: true
//
// # Verify the Pipeline
//
//	curl -v http://localhost:4318/v1/traces
//
// A startup span named tracing.init is emitted when export is enabled;
// if the collector never shows it, check the agent logs before
// suspecting the service.
//
// # Configuration
//
// Config file (~/.lore/lore.yaml):
//
//	tracing:
//	  enabled: true
//	  endpoint: "localhost:4318"
//	  environment: "dev"
//	  service_name: "lore"
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/log"
)

// DefaultEndpoint is the conventional local OTLP/HTTP collector port.
const DefaultEndpoint = "localhost:4318"

// Setup registers an OTLP exporter with Genkit's TracerProvider so
// indexing and retrieval spans reach the local collector agent.
//
// Returns a shutdown function that flushes pending spans. Export
// trouble never fails startup: with tracing disabled or the exporter
// unavailable the shutdown function is a no-op and retrieval proceeds
// untraced.
func Setup(ctx context.Context, cfg config.TracingConfig, logger log.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Genkit's TracerProvider reads the standard OTEL variables when it
	// builds its resource, so the service identity goes through the
	// environment rather than a second provider.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // localhost agent, no TLS
	}
	if cfg.APIKey != "" {
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{"x-api-key": cfg.APIKey}))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		logger.Warn("span exporter unavailable, tracing disabled", "endpoint", endpoint, "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	// One startup span proves the pipeline end to end.
	tracer := tracing.TracerProvider().Tracer("lore")
	_, span := tracer.Start(ctx, "tracing.init")
	span.End()

	return tracing.TracerProvider().Shutdown, nil
}
