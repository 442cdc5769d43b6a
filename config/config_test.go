package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assistant-ears/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
log_level: debug
audio:
  backend: wav
  wav_path: testdata/hello.wav
capture:
  silence_duration: 1s
transcription:
  backend: whisper
  model_path: models/ggml-base.en.bin
session:
  end_phrases: ["over and out"]
`

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	require.NoError(t, err)

	assert.Equal(t, config.LogDebug, cfg.LogLevel)
	assert.Equal(t, config.BackendWav, cfg.Audio.Backend)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 1024, cfg.Audio.FrameSize)
	assert.Equal(t, time.Second, cfg.Capture.SilenceDuration)
	assert.Equal(t, 30*time.Second, cfg.Capture.MaxDuration)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.Tail)
	assert.Equal(t, 500.0, cfg.Noise.InitialThreshold)
	assert.Equal(t, "alfred", cfg.Wake.Phrase)
	assert.Equal(t, []string{"over and out"}, cfg.Session.EndPhrases)
	assert.Equal(t, []string{"exit", "quit"}, cfg.Session.ExitPhrases)
	assert.Equal(t, "127.0.0.1:9464", cfg.Control.ListenAddr)
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  bakend: wav\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bakend")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	cfg.Audio.FrameSize = 0
	cfg.Noise.AdaptRate = 2
	cfg.Capture.MaxDuration = time.Second
	cfg.Wake.Threshold = 1
	cfg.Transcription.ModelPath = ""

	err := config.Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))

	for _, want := range []string{
		"log_level",
		"audio.frame_size",
		"noise.adapt_rate",
		"capture.max_duration",
		"wake.threshold",
		"transcription.model_path",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateBackendRequirements(t *testing.T) {
	tests := map[string]struct {
		mutate func(*config.Config)
		want   string
	}{
		"wav without path": {
			mutate: func(c *config.Config) { c.Audio.Backend = config.BackendWav },
			want:   "audio.wav_path",
		},
		"openai without key": {
			mutate: func(c *config.Config) { c.Transcription.Backend = config.TranscriberOpenAI },
			want:   "transcription.api_key",
		},
		"whisper at 44.1kHz": {
			mutate: func(c *config.Config) { c.Audio.SampleRate = 44100 },
			want:   "audio.sample_rate 16000",
		},
		"fallback without phrase": {
			mutate: func(c *config.Config) { c.Wake.Phrase = "?!" },
			want:   "wake.phrase",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Transcription.ModelPath = "model.bin"
			tc.mutate(cfg)

			err := config.Validate(cfg)
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"AI_BOT_HOST":    "http://bot.local:8080",
		"WAKE_PHRASE":    "jarvis",
	}
	cfg := config.Default()
	config.ApplyEnv(cfg, func(k string) string { return env[k] })

	assert.Equal(t, "sk-test", cfg.Transcription.APIKey)
	assert.Equal(t, "http://bot.local:8080", cfg.Commands.APIHost)
	assert.Equal(t, "jarvis", cfg.Wake.Phrase)
}

func TestLoadFileWithOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ears.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	_, err := config.Load(path)
	require.ErrorIs(t, err, config.ErrInvalid, "whisper needs a model path")

	cfg, err := config.Load(path, func(c *config.Config) {
		c.Transcription.ModelPath = "ggml-tiny.bin"
	})
	require.NoError(t, err)
	assert.Equal(t, config.LogWarn, cfg.LogLevel)
	assert.Equal(t, "ggml-tiny.bin", cfg.Transcription.ModelPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	require.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EARS_TEST_VALUE=hello\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("EARS_TEST_VALUE") })

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("EARS_TEST_VALUE"))
}
