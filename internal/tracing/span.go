package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/canaryload/internal/runner"
)

// Attribute keys used on canaryload spans.
const (
	AttrScenario   = attribute.Key("canaryload.scenario")
	AttrProbe      = attribute.Key("canaryload.probe")
	AttrVU         = attribute.Key("canaryload.vu")
	AttrIteration  = attribute.Key("canaryload.iteration")
	AttrMethod     = attribute.Key("http.request.method")
	AttrURL        = attribute.Key("url.full")
	AttrStatusCode = attribute.Key("http.response.status_code")
)

// StartIterationSpan starts the parent span of one scenario iteration. VU and
// iteration numbers are taken from the runner context when present.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, scenario string) (context.Context, trace.Span) {
	name := "iteration"
	if scenario != "" {
		name = "iteration " + scenario
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	if scenario != "" {
		span.SetAttributes(AttrScenario.String(scenario))
	}
	if vu := runner.VUFromContext(ctx); vu > 0 {
		span.SetAttributes(AttrVU.Int(vu))
	}
	if n := runner.IterationFromContext(ctx); n > 0 {
		span.SetAttributes(AttrIteration.Int64(n))
	}
	return ctx, span
}

// StartRequestSpan starts a client span for one probe GET.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, probe, url string) (context.Context, trace.Span) {
	spanName := http.MethodGet
	if probe != "" {
		spanName = http.MethodGet + " " + probe
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(AttrMethod.String(http.MethodGet))
	if url != "" {
		span.SetAttributes(AttrURL.String(url))
	}
	if probe != "" {
		span.SetAttributes(AttrProbe.String(probe))
	}
	return ctx, span
}

// StatusCode returns the response status attribute.
func StatusCode(code int) attribute.KeyValue {
	return AttrStatusCode.Int(code)
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
