// Package observability provides OpenTelemetry tracing, Prometheus-format
// metrics and slog construction for lexrag.
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

// TracerName is the instrumentation scope for all lexrag spans.
const TracerName = "github.com/efebarandurmaz/lexrag"

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	// Tracing is disabled when empty.
	OTLPEndpoint string
	Insecure     bool

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "lexrag",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracing initializes OpenTelemetry tracing and installs it globally.
// It returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes and stops the provider. A no-op provider returns nil.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Span kinds recorded in the lexrag.span.kind attribute.
const (
	SpanKindRetrieve = "retrieve"
	SpanKindEmbed    = "embed"
	SpanKindIndex    = "index"
	SpanKindLLM      = "llm"
	SpanKindIngest   = "ingest"
)

func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartRetrieveSpan starts the root span of one retrieval.
func StartRetrieveSpan(ctx context.Context, topK, radius int) (context.Context, trace.Span) {
	return start(ctx, "retrieval.retrieve", trace.SpanKindInternal,
		attribute.String("lexrag.span.kind", SpanKindRetrieve),
		attribute.Int("retrieval.top_k", topK),
		attribute.Int("retrieval.radius", radius),
	)
}

// RecordRetrieveResult records match, expansion and fragment counts.
func RecordRetrieveResult(span trace.Span, matches, expanded, fragments int) {
	span.SetAttributes(
		attribute.Int("retrieval.matches", matches),
		attribute.Int("retrieval.expanded", expanded),
		attribute.Int("retrieval.fragments", fragments),
		attribute.Bool("retrieval.grounded", fragments > 0),
	)
}

// StartEmbedSpan starts a span for an embedding call.
func StartEmbedSpan(ctx context.Context, model string, texts int) (context.Context, trace.Span) {
	return start(ctx, "embedding.embed", trace.SpanKindClient,
		attribute.String("lexrag.span.kind", SpanKindEmbed),
		attribute.String("embedding.model", model),
		attribute.Int("embedding.texts", texts),
	)
}

// StartIndexSpan starts a span for a vector index operation such as
// "query" or "fetch".
func StartIndexSpan(ctx context.Context, op string, size int) (context.Context, trace.Span) {
	return start(ctx, "index."+op, trace.SpanKindClient,
		attribute.String("lexrag.span.kind", SpanKindIndex),
		attribute.String("index.op", op),
		attribute.Int("index.size", size),
	)
}

// StartLLMSpan starts a span for an LLM call.
func StartLLMSpan(ctx context.Context, provider, op string) (context.Context, trace.Span) {
	return start(ctx, "llm."+op, trace.SpanKindClient,
		attribute.String("lexrag.span.kind", SpanKindLLM),
		attribute.String("llm.provider", provider),
	)
}

// RecordLLMOutput records the size of a completion.
func RecordLLMOutput(span trace.Span, chars int, complete bool) {
	span.SetAttributes(
		attribute.Int("llm.output_chars", chars),
		attribute.Bool("llm.complete", complete),
	)
}

// StartIngestSpan starts a span for an ingestion stage.
func StartIngestSpan(ctx context.Context, stage string, items int) (context.Context, trace.Span) {
	return start(ctx, "ingest."+stage, trace.SpanKindInternal,
		attribute.String("lexrag.span.kind", SpanKindIngest),
		attribute.String("ingest.stage", stage),
		attribute.Int("ingest.items", items),
	)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
