// Package metrics holds the OpenTelemetry instruments recorded by the
// listening pipeline. InitProvider bridges them to a Prometheus registry so
// they can be scraped from /metrics; tests should build a Metrics with
// NewMetrics and their own MeterProvider.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "assistant-ears"

// Metrics holds all instruments. Safe for concurrent use.
type Metrics struct {
	// FramesRead counts frames pulled from the audio source. Use with
	// attribute.Bool("gated", ...) for frames dropped while the assistant
	// was speaking.
	FramesRead metric.Int64Counter

	// WakeDetections counts activations. Use with attribute.String("source", ...)
	// ("model", "fallback" or "manual").
	WakeDetections metric.Int64Counter

	// ScorerErrors counts wake scorer failures that were absorbed.
	ScorerErrors metric.Int64Counter

	// DeviceErrors counts capture device failures.
	DeviceErrors metric.Int64Counter

	// Utterances counts finalized utterances. Use with
	// attribute.String("end", ...) ("silence", "max_duration", "eof").
	Utterances metric.Int64Counter

	// UtteranceDuration tracks the audio length of finalized utterances.
	UtteranceDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency. Use with
	// attribute.String("status", ...).
	TranscriptionDuration metric.Float64Histogram

	// Transitions counts session state changes. Use with
	// attribute.String("from", ...), attribute.String("to", ...).
	Transitions metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesRead, err = m.Int64Counter("ears.frames.read",
		metric.WithDescription("Audio frames read from the capture source."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("ears.wake.detections",
		metric.WithDescription("Activations by source."),
	); err != nil {
		return nil, err
	}
	if met.ScorerErrors, err = m.Int64Counter("ears.wake.scorer_errors",
		metric.WithDescription("Wake scorer failures treated as no detection."),
	); err != nil {
		return nil, err
	}
	if met.DeviceErrors, err = m.Int64Counter("ears.device.errors",
		metric.WithDescription("Capture device failures."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("ears.utterances",
		metric.WithDescription("Finalized utterances by end reason."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("ears.utterance.duration",
		metric.WithDescription("Audio length of finalized utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("ears.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("ears.session.transitions",
		metric.WithDescription("Listening session state transitions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns a process-wide Metrics built on the global MeterProvider.
// Components fall back to it when their config leaves Metrics nil.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default instruments: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTransition is a convenience for the session loop.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) RecordFrame(ctx context.Context, gated bool) {
	m.FramesRead.Add(ctx, 1, metric.WithAttributes(attribute.Bool("gated", gated)))
}

func (m *Metrics) RecordWake(ctx context.Context, source string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) RecordUtterance(ctx context.Context, end string, seconds float64) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("end", end)))
	m.UtteranceDuration.Record(ctx, seconds)
}

func (m *Metrics) RecordTranscription(ctx context.Context, status string, seconds float64) {
	m.TranscriptionDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}
