package noise_floor

import (
	"fmt"
	"math"
	"sync"

	"assistant-ears/audio_frame"
)

const (
	DefaultInitialThreshold = 500.0
	DefaultMinThreshold     = 300.0
	DefaultAlpha            = 0.05
	DefaultFactor           = 2.5
)

// NoiseState is the adaptive estimate of ambient loudness.
type NoiseState struct {
	NoiseFloor float64
	Threshold  float64
}

type Config struct {
	InitialThreshold float64
	MinThreshold     float64
	// Alpha is the exponential moving average rate, in (0, 1].
	Alpha float64
	// Factor scales the noise floor into the speech threshold.
	Factor float64
}

func DefaultConfig() *Config {
	return &Config{
		InitialThreshold: DefaultInitialThreshold,
		MinThreshold:     DefaultMinThreshold,
		Alpha:            DefaultAlpha,
		Factor:           DefaultFactor,
	}
}

// Tracker classifies frames as speech or noise and slowly follows the noise
// floor while it is not frozen. A Tracker is owned by one capture goroutine
// but State may be read from anywhere.
type Tracker struct {
	cfg Config

	mu     sync.Mutex
	state  NoiseState
	frozen bool
}

func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.MinThreshold < 0 {
		return nil, fmt.Errorf("min threshold must not be negative")
	}

	if cfg.InitialThreshold < cfg.MinThreshold {
		return nil, fmt.Errorf("initial threshold %.1f is below min threshold %.1f", cfg.InitialThreshold, cfg.MinThreshold)
	}

	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1], got %v", cfg.Alpha)
	}

	if cfg.Factor <= 0 {
		return nil, fmt.Errorf("factor must be positive, got %v", cfg.Factor)
	}

	return &Tracker{
		cfg: *cfg,
		state: NoiseState{
			NoiseFloor: cfg.InitialThreshold / 2,
			Threshold:  cfg.InitialThreshold,
		},
	}, nil
}

// Observe returns the loudness of frame and, if the frame is quieter than
// the current threshold and the tracker is not frozen, folds it into the
// noise floor. The threshold used for the comparison is the one in effect
// before the update.
func (t *Tracker) Observe(frame audio_frame.Frame) float64 {
	loudness := frame.Loudness()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen || loudness >= t.state.Threshold {
		return loudness
	}

	a := t.cfg.Alpha
	t.state.NoiseFloor = t.state.NoiseFloor*(1-a) + loudness*a
	t.state.Threshold = math.Max(t.cfg.MinThreshold, t.state.NoiseFloor*t.cfg.Factor)

	return loudness
}

// IsSpeech reports whether loudness exceeds the current threshold.
func (t *Tracker) IsSpeech(loudness float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return loudness > t.state.Threshold
}

// Freeze stops adaptation so a speaker's own voice does not raise the floor.
func (t *Tracker) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

func (t *Tracker) Resume() {
	t.mu.Lock()
	t.frozen = false
	t.mu.Unlock()
}

func (t *Tracker) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

func (t *Tracker) State() NoiseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Threshold() float64 {
	return t.State().Threshold
}
