package utterance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"assistant-ears/audio_frame"
	"assistant-ears/frame_source"
	"assistant-ears/listener/voice_activity_detection"
	"assistant-ears/metrics"
	"assistant-ears/noise_floor"
	"assistant-ears/playback_gate"
)

const (
	DefaultSilenceDuration = 1500 * time.Millisecond
	DefaultMaxDuration     = 30 * time.Second
)

type Config struct {
	Tracker *noise_floor.Tracker
	Gate    playback_gate.Interface
	Format  audio_frame.Format

	SilenceDuration time.Duration
	MaxDuration     time.Duration

	// Flux is optional; when set, PeakFlux is filled in.
	Flux    voice_activity_detection.Interface
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Now is the monotonic clock used for the hard cap.
	Now func() time.Time
}

type segmenterImpl struct {
	tracker *noise_floor.Tracker
	gate    playback_gate.Interface
	format  audio_frame.Format
	flux    voice_activity_detection.Interface
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	silenceDuration time.Duration
	maxDuration     time.Duration
	silenceLimit    float64
	maxFrames       int
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Tracker == nil {
		return nil, fmt.Errorf("noise floor tracker is nil")
	}

	if cfg.Gate == nil {
		return nil, fmt.Errorf("playback gate is nil")
	}

	if cfg.Format.SampleRate <= 0 || cfg.Format.FrameSize <= 0 {
		return nil, fmt.Errorf("invalid audio format %+v", cfg.Format)
	}

	s := &segmenterImpl{
		tracker:         cfg.Tracker,
		gate:            cfg.Gate,
		format:          cfg.Format,
		flux:            cfg.Flux,
		metrics:         cfg.Metrics,
		log:             cfg.Logger,
		now:             cfg.Now,
		silenceDuration: cfg.SilenceDuration,
		maxDuration:     cfg.MaxDuration,
	}

	if s.silenceDuration <= 0 {
		s.silenceDuration = DefaultSilenceDuration
	}
	if s.maxDuration <= 0 {
		s.maxDuration = DefaultMaxDuration
	}
	if s.maxDuration < s.silenceDuration {
		return nil, fmt.Errorf("max duration %s is shorter than silence duration %s", s.maxDuration, s.silenceDuration)
	}
	if s.metrics == nil {
		s.metrics = metrics.Default()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	// recording ends once the silent run exceeds this many frames; the limit
	// is fractional at most rates (23.4375 at 16 kHz / 1024 for 1.5s)
	s.silenceLimit = s.silenceDuration.Seconds() * cfg.Format.FramesPerSecond()

	period := cfg.Format.FramePeriod()
	s.maxFrames = int(math.Ceil(float64(s.maxDuration) / float64(period)))

	return s, nil
}

func (s *segmenterImpl) Capture(ctx context.Context, reader frame_source.Reader) (*Utterance, error) {
	var (
		frames       []audio_frame.Frame
		recording    bool
		silentRun    int
		framesRead   int
		peakLoudness float64
		peakFlux     float64
		startedAt    time.Time
	)

	defer func() {
		if recording {
			s.tracker.Resume()
		}
	}()

	if s.flux != nil {
		s.flux.Reset()
	}

	captureStart := s.now()

	finalize := func(end EndReason) *Utterance {
		u := &Utterance{
			ID:                   uuid.New(),
			PCM:                  audio_frame.Flatten(frames),
			SampleRate:           s.format.SampleRate,
			Frames:               len(frames),
			TrailingSilentFrames: silentRun,
			StartedAt:            startedAt,
			Duration:             time.Duration(len(frames)) * s.format.FramePeriod(),
			PeakLoudness:         peakLoudness,
			PeakFlux:             peakFlux,
			End:                  end,
		}

		s.metrics.RecordUtterance(ctx, string(end), u.Duration.Seconds())
		s.log.Debug("utterance finalized",
			"id", u.ID,
			"frames", u.Frames,
			"trailing_silent", u.TrailingSilentFrames,
			"end", end,
		)

		return u
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !recording {
			if framesRead >= s.maxFrames || s.now().Sub(captureStart) >= s.maxDuration {
				s.log.Debug("no speech before cap", "frames", framesRead)
				return nil, nil
			}
		} else if len(frames) >= s.maxFrames || s.now().Sub(startedAt) >= s.maxDuration {
			return finalize(EndMaxDuration), nil
		}

		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if recording {
					return finalize(EndOfStream), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
		framesRead++

		if s.gate.IsAssistantSpeaking() {
			s.metrics.RecordFrame(ctx, true)
			continue
		}
		s.metrics.RecordFrame(ctx, false)

		threshold := s.tracker.Threshold()
		loudness := s.tracker.Observe(frame)
		loud := loudness > threshold

		if !recording {
			if !loud {
				continue
			}

			recording = true
			s.tracker.Freeze()
			startedAt = s.now()
			s.log.Debug("speech started", "loudness", loudness, "threshold", threshold)
		}

		frames = append(frames, frame)
		peakLoudness = math.Max(peakLoudness, loudness)
		if s.flux != nil {
			peakFlux = math.Max(peakFlux, s.flux.Flux(frame))
		}

		if loud {
			silentRun = 0
			continue
		}

		silentRun++
		if float64(silentRun) > s.silenceLimit {
			return finalize(EndSilence), nil
		}
	}
}
