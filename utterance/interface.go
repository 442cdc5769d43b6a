package utterance

import (
	"context"
	"time"

	"github.com/go-audio/audio"
	"github.com/google/uuid"

	"assistant-ears/audio_frame"
	"assistant-ears/frame_source"
)

// Interface captures one spoken utterance from a frame stream.
type Interface interface {
	// Capture reads frames until speech starts and then stops again. A nil
	// Utterance with a nil error means nothing was said before the hard cap.
	// If the source ends before any speech, Capture returns io.EOF.
	Capture(ctx context.Context, reader frame_source.Reader) (*Utterance, error)
}

// EndReason records why a capture stopped recording.
type EndReason string

const (
	EndSilence     EndReason = "silence"
	EndMaxDuration EndReason = "max_duration"
	EndOfStream    EndReason = "eof"
)

// Utterance is one finalized span of speech. PCM is owned by the receiver.
type Utterance struct {
	ID                   uuid.UUID
	PCM                  []int16
	SampleRate           int
	Frames               int
	TrailingSilentFrames int
	StartedAt            time.Time
	Duration             time.Duration
	PeakLoudness         float64
	PeakFlux             float64
	End                  EndReason
}

// Buffer wraps the PCM for go-audio encoders.
func (u *Utterance) Buffer() *audio.IntBuffer {
	return audio_frame.IntBuffer(u.PCM, u.SampleRate)
}
