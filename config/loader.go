package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"assistant-ears/audio_frame"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Option adjusts a loaded Config before validation, typically from
// command line flags.
type Option func(*Config)

// Load reads the YAML file at path over the defaults, applies environment
// overrides and opts, then validates the result. An empty path uses the
// defaults only.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if cfg, err = decode(f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	ApplyEnv(cfg, os.Getenv)
	for _, opt := range opts {
		opt(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Environment variables are not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none
// are named) into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays secrets and deployment specific values from the
// environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.Transcription.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Transcription.BaseURL = v
	}
	if v := getenv("AI_BOT_HOST"); v != "" {
		cfg.Commands.APIHost = v
	}
	if v := getenv("WAKE_PHRASE"); v != "" {
		cfg.Wake.Phrase = v
	}
	if v := getenv("ONNXRUNTIME_LIB"); v != "" && cfg.Wake.OnnxLibrary == "" {
		cfg.Wake.OnnxLibrary = v
	}
}

// Validate checks that cfg contains a coherent set of values. It returns
// ErrInvalid joined with every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	if !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio, malgo, wav", cfg.Audio.Backend))
	}
	if cfg.Audio.Backend == BackendWav && cfg.Audio.WavPath == "" {
		errs = append(errs, errors.New("audio.wav_path is required for the wav backend"))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be at least 1, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size must be positive, got %d", cfg.Audio.FrameSize))
	}

	// Noise
	n := cfg.Noise
	if n.MinThreshold < 0 {
		errs = append(errs, fmt.Errorf("noise.min_threshold must not be negative, got %v", n.MinThreshold))
	}
	if n.InitialThreshold < n.MinThreshold {
		errs = append(errs, fmt.Errorf("noise.initial_threshold %v is below noise.min_threshold %v", n.InitialThreshold, n.MinThreshold))
	}
	if n.AdaptRate <= 0 || n.AdaptRate > 1 {
		errs = append(errs, fmt.Errorf("noise.adapt_rate must be in (0, 1], got %v", n.AdaptRate))
	}
	if n.Factor <= 0 {
		errs = append(errs, fmt.Errorf("noise.factor must be positive, got %v", n.Factor))
	}

	// Capture
	if cfg.Capture.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("capture.silence_duration must be positive, got %s", cfg.Capture.SilenceDuration))
	}
	if cfg.Capture.MaxDuration < cfg.Capture.SilenceDuration {
		errs = append(errs, fmt.Errorf("capture.max_duration %s is shorter than capture.silence_duration %s", cfg.Capture.MaxDuration, cfg.Capture.SilenceDuration))
	}

	// Wake
	if cfg.Wake.ModelPath == "" && normalizedEmpty(cfg.Wake.Phrase) {
		errs = append(errs, errors.New("wake.phrase is required when no wake.model_path is set"))
	}
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("wake.threshold must be in [0, 1), got %v", cfg.Wake.Threshold))
	}
	if cfg.Wake.Timeout < 0 {
		errs = append(errs, fmt.Errorf("wake.timeout must not be negative, got %s", cfg.Wake.Timeout))
	}
	if cfg.Wake.Window < 0 {
		errs = append(errs, fmt.Errorf("wake.window must not be negative, got %s", cfg.Wake.Window))
	}

	if cfg.Playback.Tail < 0 {
		errs = append(errs, fmt.Errorf("playback.tail must not be negative, got %s", cfg.Playback.Tail))
	}

	// Session
	if cfg.Session.ErrorBackoff <= 0 {
		errs = append(errs, fmt.Errorf("session.error_backoff must be positive, got %s", cfg.Session.ErrorBackoff))
	}
	if cfg.Session.MaxBackoff < cfg.Session.ErrorBackoff {
		errs = append(errs, fmt.Errorf("session.max_backoff %s is shorter than session.error_backoff %s", cfg.Session.MaxBackoff, cfg.Session.ErrorBackoff))
	}

	// Transcription
	t := cfg.Transcription
	switch t.Backend {
	case TranscriberWhisper:
		if t.ModelPath == "" {
			errs = append(errs, errors.New("transcription.model_path is required for the whisper backend"))
		}
		if cfg.Audio.SampleRate != audio_frame.DefaultSampleRate {
			errs = append(errs, fmt.Errorf("whisper needs audio.sample_rate %d, got %d", audio_frame.DefaultSampleRate, cfg.Audio.SampleRate))
		}
	case TranscriberOpenAI:
		if t.APIKey == "" {
			errs = append(errs, errors.New("transcription.api_key (or OPENAI_API_KEY) is required for the openai backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("transcription.backend %q is invalid; valid values: whisper, openai", t.Backend))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func normalizedEmpty(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
