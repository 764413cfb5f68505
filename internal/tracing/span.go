package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on scenario spans.
const (
	AttrRunID = attribute.Key("digestload.run_id")
	AttrTag   = attribute.Key("digestload.tag")
)

// StartIterationSpan starts the parent span covering one scenario iteration.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// StartRequestSpan starts a client span for one tagged request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, tag, url string) (context.Context, trace.Span) {
	spanName := method + " request"
	if tag != "" {
		spanName = method + " " + tag
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
	)
	if tag != "" {
		span.SetAttributes(AttrTag.String(tag))
	}
	return ctx, span
}

// EndRequestSpan records the response status and finishes the span. A
// status outside 2xx marks the span as failed even without err.
func EndRequestSpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err == nil && (status < 200 || status > 299) && status != 0 {
		span.SetStatus(codes.Error, http.StatusText(status))
		span.End()
		return
	}
	EndSpan(span, err)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
