// Package observability initialises OpenTelemetry tracing and provides the
// span helpers wrapped around model calls and tool executions.
package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"openresponses.ai/gateway/internal/domain/llm"
)

const tracerName = "openresponses/gateway"

// Setup initialises the tracer provider. With an empty endpoint spans stay
// in process. The returned shutdown function must be invoked on exit.
func Setup(ctx context.Context, serviceName, environment, otlpEndpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		return nil, err
	}

	var tracerProvider *sdktrace.TracerProvider
	if otlpEndpoint != "" {
		// Accept "collector:4318" as well as full http(s) URLs.
		endpoint := otlpEndpoint
		insecure := true
		if strings.HasPrefix(endpoint, "http://") {
			endpoint = strings.TrimPrefix(endpoint, "http://")
		} else if strings.HasPrefix(endpoint, "https://") {
			endpoint = strings.TrimPrefix(endpoint, "https://")
			insecure = false
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
		)
	} else {
		tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}

	otel.SetTracerProvider(tracerProvider)
	return tracerProvider.Shutdown, nil
}

// GetTracer returns the gateway tracer.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Tracer implements the orchestrator's span contract.
type Tracer struct{}

// NewTracer returns the span helper handed to the orchestrator.
func NewTracer() *Tracer { return &Tracer{} }

// StartModelCall opens a span around one upstream chat completion.
func (Tracer) StartModelCall(ctx context.Context, target llm.Target) (context.Context, func(error)) {
	ctx, span := GetTracer().Start(ctx, "llm.chat_completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.system", target.SystemName),
			attribute.String("llm.model", target.ModelName),
		),
	)
	return ctx, func(err error) {
		recordError(span, err)
		span.End()
	}
}

// StartToolCall opens a span around one tool execution.
func (Tracer) StartToolCall(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := GetTracer().Start(ctx, "tool.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", name)),
	)
	return ctx, func(err error) {
		recordError(span, err)
		span.End()
	}
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
