package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope under which all render spans are
// recorded.
const tracerName = "github.com/MrWong99/lipsynth"

// StartSpan opens a span on the globally registered tracer provider. Span
// names follow the "render.<stage>" convention, so one run produces a
// render.run root with one child per pipeline stage. The caller must call
// span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Tracer returns the lipsynth [trace.Tracer].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// CorrelationID returns the hex trace ID of the span in ctx, or "" outside
// a recording span. Log lines carrying it can be joined with the exported
// trace of the same run.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] bound to the trace and span IDs
// in ctx. Outside a span it is the plain default logger, so callers can use
// it unconditionally.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
