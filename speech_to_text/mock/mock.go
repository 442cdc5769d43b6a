// Package mock provides a scripted speech_to_text.Interface.
package mock

import (
	"context"
	"sync"

	"assistant-ears/speech_to_text"
)

// Call records one Transcribe invocation.
type Call struct {
	PCM        []int16
	SampleRate int
}

// Transcriber returns Texts in order, one per call, then empty strings.
type Transcriber struct {
	mu sync.Mutex

	Texts []string
	// Err, if set, is returned by every call instead of a text.
	Err error

	calls []Call
}

func (m *Transcriber) Transcribe(_ context.Context, pcm []int16, sampleRate int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.calls)
	m.calls = append(m.calls, Call{PCM: pcm, SampleRate: sampleRate})

	if m.Err != nil {
		return "", m.Err
	}

	if i < len(m.Texts) {
		return m.Texts[i], nil
	}

	return "", nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (m *Transcriber) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ speech_to_text.Interface = (*Transcriber)(nil)
