package speech_to_text

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"assistant-ears/audio_frame"
)

type sttImpl struct {
	model    whisper.Model
	language string
	log      *slog.Logger

	// whisper contexts are not safe for concurrent use, and one model run
	// already saturates the CPU.
	mu sync.Mutex
}

type Config struct {
	Model    whisper.Model
	Language string
	Logger   *slog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &sttImpl{
		model:    cfg.Model,
		language: cfg.Language,
		log:      logger,
	}, nil
}

func (stt *sttImpl) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if sampleRate != whisper.SampleRate {
		return "", &TranscriptionError{
			Backend: "whisper",
			Err:     fmt.Errorf("sample rate %d, model expects %d", sampleRate, whisper.SampleRate),
		}
	}

	stt.mu.Lock()
	defer stt.mu.Unlock()

	// Create processing context
	context, err := stt.model.NewContext()
	if err != nil {
		return "", &TranscriptionError{Backend: "whisper", Err: err}
	}

	if stt.language != "" {
		if err := context.SetLanguage(stt.language); err != nil {
			stt.log.Warn("whisper: failed to set language, using default", "language", stt.language, "err", err)
		}
	}

	data := audio_frame.IntBuffer(pcm, sampleRate).AsFloat32Buffer().Data

	err = context.Process(data, nil, nil, nil)
	if err != nil {
		return "", &TranscriptionError{Backend: "whisper", Err: err}
	}

	segments, err := outputSegments(context)
	if err != nil {
		return "", &TranscriptionError{Backend: "whisper", Err: err}
	}

	texts := make([]string, 0, len(segments))
	for _, segment := range segments {
		stt.log.Debug("segment",
			"start", segment.Start,
			"end", segment.End,
			"text", segment.Text,
		)
		texts = append(texts, strings.TrimSpace(segment.Text))
	}

	return strings.Join(texts, " "), nil
}

type segmentReader interface {
	NextSegment() (whisper.Segment, error)
}

// outputSegments drops non-speech annotations such as "[BLANK_AUDIO]" or
// "(wind blowing)" and repeated segments, which whisper tends to hallucinate
// on short clips.
func outputSegments(context segmentReader) ([]whisper.Segment, error) {
	seenText := make(map[string]bool)

	segments := make([]whisper.Segment, 0)

	for {
		segment, err := context.NextSegment()
		if err == io.EOF {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}

		// if segment text starts or ends with a parenthesis or a bracket, then ignore it
		if text[0] == '(' || text[0] == '[' ||
			text[len(text)-1] == ')' || text[len(text)-1] == ']' {
			continue
		}

		// if we've already seen this text, then ignore it
		if _, ok := seenText[text]; ok {
			continue
		} else {
			seenText[text] = true
		}

		segments = append(segments, segment)
	}
}
