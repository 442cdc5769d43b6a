// Package config holds the configuration schema and loader for the
// listening front-end.
package config

import (
	"time"

	"assistant-ears/audio_frame"
	"assistant-ears/noise_floor"
	"assistant-ears/playback_gate"
	"assistant-ears/utterance"
	"assistant-ears/wake_spotter"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend names a capture implementation.
type Backend string

const (
	BackendPortAudio Backend = "portaudio"
	BackendMalgo     Backend = "malgo"
	BackendWav       Backend = "wav"
)

func (b Backend) IsValid() bool {
	switch b {
	case BackendPortAudio, BackendMalgo, BackendWav:
		return true
	}
	return false
}

// Transcriber names a speech-to-text implementation.
type Transcriber string

const (
	TranscriberWhisper Transcriber = "whisper"
	TranscriberOpenAI  Transcriber = "openai"
)

func (t Transcriber) IsValid() bool {
	return t == TranscriberWhisper || t == TranscriberOpenAI
}

// Config is the root configuration structure.
type Config struct {
	LogLevel      LogLevel            `yaml:"log_level"`
	Audio         AudioConfig         `yaml:"audio"`
	Noise         NoiseConfig         `yaml:"noise"`
	Capture       CaptureConfig       `yaml:"capture"`
	Wake          WakeConfig          `yaml:"wake"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Commands      CommandsConfig      `yaml:"commands"`
	Control       ControlConfig       `yaml:"control"`
}

type AudioConfig struct {
	Backend Backend `yaml:"backend"`

	// Device selects a capture device by name; empty means the default.
	Device  string `yaml:"device"`
	WavPath string `yaml:"wav_path"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	FrameSize  int `yaml:"frame_size"`

	// Realtime paces WAV replay at the recording's own speed.
	Realtime bool `yaml:"realtime"`
}

// Format is the stream format the audio section describes.
func (a AudioConfig) Format() audio_frame.Format {
	return audio_frame.Format{
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		FrameSize:  a.FrameSize,
	}
}

type NoiseConfig struct {
	InitialThreshold float64 `yaml:"initial_threshold"`
	MinThreshold     float64 `yaml:"min_threshold"`
	AdaptRate        float64 `yaml:"adapt_rate"`
	Factor           float64 `yaml:"factor"`
}

type CaptureConfig struct {
	SilenceDuration time.Duration `yaml:"silence_duration"`
	MaxDuration     time.Duration `yaml:"max_duration"`

	// RecordDir, when set, receives a WAV copy of every utterance.
	RecordDir string `yaml:"record_dir"`
}

type WakeConfig struct {
	Phrase string `yaml:"phrase"`

	// ModelPath selects the wake word model; empty falls back to
	// transcribing utterances and matching Phrase.
	ModelPath   string        `yaml:"model_path"`
	OnnxLibrary string        `yaml:"onnx_library"`
	Window      time.Duration `yaml:"window"`
	Threshold   float64       `yaml:"threshold"`
	Timeout     time.Duration `yaml:"timeout"`
}

type PlaybackConfig struct {
	Tail time.Duration `yaml:"tail"`
}

type SessionConfig struct {
	EndPhrases   []string      `yaml:"end_phrases"`
	ExitPhrases  []string      `yaml:"exit_phrases"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

type TranscriptionConfig struct {
	Backend   Transcriber `yaml:"backend"`
	ModelPath string      `yaml:"model_path"`
	Language  string      `yaml:"language"`
	APIKey    string      `yaml:"api_key"`
	BaseURL   string      `yaml:"base_url"`
	Model     string      `yaml:"model"`
}

type CommandsConfig struct {
	// APIHost is the command bot endpoint; empty only logs transcripts.
	APIHost string `yaml:"api_host"`
}

type ControlConfig struct {
	// ListenAddr serves /wake, /playback and /metrics; empty disables it.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			Backend:    BackendPortAudio,
			SampleRate: audio_frame.DefaultSampleRate,
			Channels:   audio_frame.DefaultChannels,
			FrameSize:  audio_frame.DefaultFrameSize,
		},
		Noise: NoiseConfig{
			InitialThreshold: noise_floor.DefaultInitialThreshold,
			MinThreshold:     noise_floor.DefaultMinThreshold,
			AdaptRate:        noise_floor.DefaultAlpha,
			Factor:           noise_floor.DefaultFactor,
		},
		Capture: CaptureConfig{
			SilenceDuration: utterance.DefaultSilenceDuration,
			MaxDuration:     utterance.DefaultMaxDuration,
		},
		Wake: WakeConfig{
			Phrase:    "alfred",
			Window:    time.Second,
			Threshold: wake_spotter.DefaultThreshold,
		},
		Playback: PlaybackConfig{
			Tail: playback_gate.DefaultTail,
		},
		Session: SessionConfig{
			EndPhrases:   []string{"that's all", "thank you", "thanks", "goodbye", "bye", "stop listening"},
			ExitPhrases:  []string{"exit", "quit"},
			ErrorBackoff: 2 * time.Second,
			MaxBackoff:   30 * time.Second,
		},
		Transcription: TranscriptionConfig{
			Backend:  TranscriberWhisper,
			Language: "en",
			Model:    "whisper-1",
		},
		Control: ControlConfig{
			ListenAddr: "127.0.0.1:9464",
		},
	}
}
