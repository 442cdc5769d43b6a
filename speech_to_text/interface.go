package speech_to_text

import (
	"context"
	"fmt"
)

type Interface interface {
	// Transcribe turns mono 16-bit PCM into text. An empty string means
	// nothing intelligible was said.
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)
}

// TranscriptionError reports a failure of the transcription engine. Callers
// treat it as "nothing heard".
type TranscriptionError struct {
	Backend string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("speech_to_text: %s: %v", e.Backend, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}
