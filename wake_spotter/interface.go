package wake_spotter

import (
	"context"
	"fmt"
	"time"

	"assistant-ears/frame_source"
)

type Interface interface {
	// Detect consumes frames until the wake phrase is heard, the timeout
	// elapses (false, nil) or the reader fails. A zero timeout waits forever.
	Detect(ctx context.Context, reader frame_source.Reader, timeout time.Duration) (bool, error)
}

// Score is one wake word model's confidence for a frame.
type Score struct {
	ModelName string
	Value     float32
}

// Scorer runs the wake word model over one normalized frame.
type Scorer interface {
	Score(samples []float32) ([]Score, error)
}

// Resetter is implemented by scorers that keep audio history. Detect resets
// them on entry so stale audio from a previous conversation cannot trigger.
type Resetter interface {
	Reset()
}

// ScorerError wraps a failed Score call. It is absorbed as "no detection".
type ScorerError struct {
	Err error
}

func (e *ScorerError) Error() string {
	return fmt.Sprintf("wake_spotter: scorer: %v", e.Err)
}

func (e *ScorerError) Unwrap() error {
	return e.Err
}
