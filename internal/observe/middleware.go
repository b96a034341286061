package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// transport instruments outgoing requests to HTTP collaborators.
type transport struct {
	base http.RoundTripper
	m    *Metrics
	prop propagation.TraceContext
}

// Transport wraps base with an [http.RoundTripper] that:
//
//  1. Starts an OTel client span for the outgoing request.
//  2. Injects W3C Trace Context into the request headers.
//  3. Records request duration to [Metrics.HTTPRequestDuration].
//  4. Logs request completion with status code, duration, and trace info.
//
// A nil base wraps [http.DefaultTransport]; a nil m uses
// [DefaultMetrics]. Use it as the transport of any HTTP collaborator
// client, e.g. the rembg matting service.
func Transport(base http.RoundTripper, m *Metrics) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if m == nil {
		m = DefaultMetrics()
	}
	return &transport{base: base, m: m}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	// 1. Start a span for this outgoing request.
	ctx, span := StartSpan(req.Context(), "HTTP "+req.Method+" "+req.URL.Host,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.URL.Host),
		),
	)
	defer span.End()

	// 2. Inject W3C trace context into the outgoing headers. RoundTrippers
	// must not mutate the caller's request, so clone first.
	req = req.Clone(ctx)
	t.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	// 3. Record duration.
	t.m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("host", req.URL.Host),
		),
	)

	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "request failed",
			slog.String("trace_id", CorrelationID(ctx)),
			slog.String("method", req.Method),
			slog.String("host", req.URL.Host),
			slog.Duration("duration", duration),
			slog.Any("err", err),
		)
		return nil, err
	}

	// Set span status attributes.
	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	// 4. Log completion.
	slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
		slog.String("trace_id", CorrelationID(ctx)),
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	)
	return resp, nil
}
