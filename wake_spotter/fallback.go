package wake_spotter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"assistant-ears/audio_frame"
	"assistant-ears/frame_source"
	"assistant-ears/metrics"
	"assistant-ears/speech_to_text"
	"assistant-ears/utterance"
)

type FallbackConfig struct {
	Segmenter   utterance.Interface
	Transcriber speech_to_text.Interface
	Phrase      string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	// Now bounds the Detect timeout. Defaults to time.Now.
	Now func() time.Time
}

type fallbackImpl struct {
	segmenter   utterance.Interface
	transcriber speech_to_text.Interface
	phrase      string
	metrics     *metrics.Metrics
	log         *slog.Logger
	now         func() time.Time
}

var errWakeTimeout = errors.New("wake_spotter: wake timeout")

// deadlineReader fails reads once now reaches deadline.
type deadlineReader struct {
	frame_source.Reader
	deadline time.Time
	now      func() time.Time
}

func (r *deadlineReader) ReadFrame() (audio_frame.Frame, error) {
	if !r.now().Before(r.deadline) {
		return nil, errWakeTimeout
	}
	return r.Reader.ReadFrame()
}

// NewFallback spots the wake phrase by transcribing whole utterances. It is
// used when no wake word model is available.
func NewFallback(cfg *FallbackConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Segmenter == nil {
		return nil, fmt.Errorf("segmenter is nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}

	phrase := normalizeText(cfg.Phrase)
	if phrase == "" {
		return nil, fmt.Errorf("wake phrase is empty")
	}

	f := &fallbackImpl{
		segmenter:   cfg.Segmenter,
		transcriber: cfg.Transcriber,
		phrase:      phrase,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		now:         cfg.Now,
	}

	if f.metrics == nil {
		f.metrics = metrics.Default()
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	if f.now == nil {
		f.now = time.Now
	}

	return f, nil
}

func (f *fallbackImpl) Detect(ctx context.Context, reader frame_source.Reader, timeout time.Duration) (bool, error) {
	if timeout > 0 {
		reader = &deadlineReader{Reader: reader, deadline: f.now().Add(timeout), now: f.now}
	}

	u, err := f.segmenter.Capture(ctx, reader)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, errWakeTimeout) {
			f.log.Debug("wake timeout elapsed", "timeout", timeout)
			return false, nil
		}
		return false, err
	}

	if u == nil {
		return false, nil
	}

	text, err := f.transcriber.Transcribe(ctx, u.PCM, u.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		f.log.Warn("wake transcription failed", "err", err)
		return false, nil
	}

	if !ContainsPhrase(text, f.phrase) {
		f.log.Debug("no wake phrase in utterance", "text", text)
		return false, nil
	}

	f.log.Info("wake phrase detected", "text", text)
	f.metrics.RecordWake(ctx, "fallback")

	return true, nil
}

// ContainsPhrase reports whether phrase occurs in text, ignoring case,
// punctuation and extra whitespace.
func ContainsPhrase(text, phrase string) bool {
	p := normalizeText(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(normalizeText(text), p)
}

// ContainsWords is ContainsPhrase restricted to whole words, so "quit"
// does not match "quite".
func ContainsWords(text, phrase string) bool {
	p := normalizeText(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+normalizeText(text)+" ", " "+p+" ")
}

// normalizeText keeps only lower-case alphanumerics separated by single spaces.
func normalizeText(s string) string {
	// apostrophes are dropped so "that's" matches "thats"; other punctuation
	// separates words
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}
		if r == '\'' {
			return -1
		}
		return ' '
	}, s)

	return strings.Join(strings.Fields(strings.ToLower(cleaned)), " ")
}
