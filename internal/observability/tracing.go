// Package observability builds the process logger and OpenTelemetry tracing.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for every span
const TracerName = "github.com/dshills/docrag-mcp"

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// SampleRate is the fraction of traces kept, 0.0 to 1.0
	SampleRate float64
}

// DefaultTracingConfig returns a config with export disabled
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "docrag",
		ServiceVersion: "dev",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the SDK provider so callers can shut it down
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs the global tracer provider. With no endpoint the
// global no-op provider is left in place.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// StartIngestSpan starts a span around one ingestion run
func StartIngestSpan(ctx context.Context, sourceDir string, incremental bool) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "indexer.Ingest",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("ingest.source_dir", sourceDir),
			attribute.Bool("ingest.incremental", incremental),
		),
	)
}

// RecordIngestResult annotates an ingest span with file counters
func RecordIngestResult(span trace.Span, discovered, processed, skipped, failed, chunks int) {
	span.SetAttributes(
		attribute.Int("ingest.files_discovered", discovered),
		attribute.Int("ingest.files_processed", processed),
		attribute.Int("ingest.files_skipped", skipped),
		attribute.Int("ingest.files_failed", failed),
		attribute.Int("ingest.chunks", chunks),
	)
}

// StartIndexSpan starts a span around ingest, embed and store
func StartIndexSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "indexer.Index",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("embedder.provider", provider),
			attribute.String("embedder.model", model),
		),
	)
}

// StartSearchSpan starts a span around query embedding and retrieval
func StartSearchSpan(ctx context.Context, limit int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "searcher.Search",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("search.limit", limit)),
	)
}

// StartRetrieveSpan starts a span around the merge engine
func StartRetrieveSpan(ctx context.Context, topK int, withContext bool, contextSize int, fullDocument bool) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "searcher.Retrieve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("retrieve.top_k", topK),
			attribute.Bool("retrieve.with_context", withContext),
			attribute.Int("retrieve.context_size", contextSize),
			attribute.Bool("retrieve.full_document", fullDocument),
		),
	)
}

// RecordResultCount sets the number of hits or chunks produced
func RecordResultCount(span trace.Span, n int) {
	span.SetAttributes(attribute.Int("result.count", n))
}

// RecordError marks span as failed
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
