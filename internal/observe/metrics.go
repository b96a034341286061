// Package observe provides the observability layer of the renderer:
// OpenTelemetry metric instruments, span helpers named after pipeline
// stages, trace-bound logging, and an instrumented HTTP transport for
// remote collaborators.
//
// [InitProvider] wires the SDK providers (metrics bridge into the default
// Prometheus registry, spans into an optional exporter) and must run before
// the first [DefaultMetrics] call. Tests construct their own [Metrics] via
// [NewMetrics] against a manual reader instead of touching the globals.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope under which all lipsynth
// instruments are registered.
const meterName = "github.com/MrWong99/lipsynth"

// latencyBuckets spans the latencies the pipeline produces, from sub-5ms
// per-frame composites up to whole-file decode and mux passes.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30,
}

// Metrics bundles the renderer's metric instruments. The OTel instruments
// synchronise internally, so one instance is shared across all pipeline
// goroutines.
type Metrics struct {
	// StageDuration tracks the wall-clock time of each pipeline stage.
	// Use with attribute:
	//   attribute.String("stage", ...) // decode | energy | classify | schedule | composite | encode | mux
	StageDuration metric.Float64Histogram

	// FramesComposited counts frames that finished compositing.
	FramesComposited metric.Int64Counter

	// RunsTotal counts render runs. Use with attribute:
	//   attribute.String("outcome", ...) // ok | error | cancelled
	RunsTotal metric.Int64Counter

	// EncodeQueueDepth tracks frames composited but not yet handed to the
	// encoder, i.e. the depth of the re-sequencing buffer.
	EncodeQueueDepth metric.Int64UpDownCounter

	// HTTPRequestDuration tracks outgoing requests to HTTP collaborators
	// such as the rembg matting service. Recorded by [Transport].
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics registers every instrument on a meter from mp and returns the
// bundle. Fails if any single instrument cannot be created.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("lipsynth.stage.duration",
		metric.WithDescription("Wall-clock duration of each render pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesComposited, err = m.Int64Counter("lipsynth.frames.composited",
		metric.WithDescription("Total frames that finished compositing."),
	); err != nil {
		return nil, err
	}
	if met.RunsTotal, err = m.Int64Counter("lipsynth.runs",
		metric.WithDescription("Total render runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.EncodeQueueDepth, err = m.Int64UpDownCounter("lipsynth.encode.queue_depth",
		metric.WithDescription("Frames composited but not yet handed to the encoder."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lipsynth.http.request.duration",
		metric.WithDescription("Duration of outgoing HTTP collaborator requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordStage records one completed pipeline stage with its duration in
// seconds.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordFrames increments the composited-frame counter by n.
func (m *Metrics) RecordFrames(ctx context.Context, n int64) {
	m.FramesComposited.Add(ctx, n)
}

// RecordRun records a finished render run with its outcome.
func (m *Metrics) RecordRun(ctx context.Context, outcome string) {
	m.RunsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared [Metrics] instance, created against the
// global meter provider on first call. The first call latches the provider,
// which is why [InitProvider] must run beforehand. Panics if instrument
// creation fails, which the global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
