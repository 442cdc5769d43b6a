package speech_to_text

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/afero"
)

type openAIImpl struct {
	client   *openai.Client
	model    string
	language string
	fs       afero.Fs
	log      *slog.Logger
}

type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a local whisper server.
	BaseURL  string
	Model    string
	Language string
	Logger   *slog.Logger
}

// NewOpenAI transcribes through the OpenAI audio transcription endpoint.
func NewOpenAI(cfg *OpenAIConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is empty")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &openAIImpl{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		language: cfg.Language,
		fs:       afero.NewMemMapFs(),
		log:      logger,
	}, nil
}

func (o *openAIImpl) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	name := uuid.NewString() + ".wav"

	data, err := encodeWAV(o.fs, name, pcm, sampleRate)
	if err != nil {
		return "", &TranscriptionError{Backend: "openai", Err: err}
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: name,
		Reader:   bytes.NewReader(data),
		Language: o.language,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TranscriptionError{Backend: "openai", Err: err}
	}

	o.log.Debug("openai transcription", "model", o.model, "bytes", len(data), "text", resp.Text)

	return strings.TrimSpace(resp.Text), nil
}
