package wake_spotter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"assistant-ears/frame_source"
	"assistant-ears/metrics"
	"assistant-ears/playback_gate"
)

const DefaultThreshold = 0.5

type ModelConfig struct {
	Scorer Scorer
	Gate   playback_gate.Interface
	// Threshold must be exceeded, not merely reached.
	Threshold float32
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type modelImpl struct {
	scorer    Scorer
	gate      playback_gate.Interface
	threshold float32
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewModel spots the wake phrase frame by frame with a wake word model.
func NewModel(cfg *ModelConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is nil")
	}

	if cfg.Gate == nil {
		return nil, fmt.Errorf("playback gate is nil")
	}

	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1), got %v", cfg.Threshold)
	}

	m := &modelImpl{
		scorer:    cfg.Scorer,
		gate:      cfg.Gate,
		threshold: cfg.Threshold,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		now:       cfg.Now,
	}

	if m.metrics == nil {
		m.metrics = metrics.Default()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}

	return m, nil
}

func (m *modelImpl) Detect(ctx context.Context, reader frame_source.Reader, timeout time.Duration) (bool, error) {
	if r, ok := m.scorer.(Resetter); ok {
		r.Reset()
	}

	start := m.now()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if timeout > 0 && m.now().Sub(start) >= timeout {
			m.log.Debug("wake listen timed out", "timeout", timeout)
			return false, nil
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			return false, err
		}

		if m.gate.IsAssistantSpeaking() {
			m.metrics.RecordFrame(ctx, true)
			continue
		}
		m.metrics.RecordFrame(ctx, false)

		scores, err := m.scorer.Score(frame.Normalize())
		if err != nil {
			sErr := &ScorerError{Err: err}
			m.log.Warn("wake scorer failed", "err", sErr)
			m.metrics.ScorerErrors.Add(ctx, 1)
			continue
		}

		for _, score := range scores {
			if score.Value > m.threshold {
				m.log.Info("wake word detected", "model", score.ModelName, "score", score.Value)
				m.metrics.RecordWake(ctx, "model")
				return true, nil
			}
		}
	}
}
