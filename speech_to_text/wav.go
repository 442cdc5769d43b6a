package speech_to_text

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"assistant-ears/audio_frame"
)

// encodeWAV renders mono PCM as a WAV file. The encoder needs to seek back
// to patch the RIFF header, so it writes through an in-memory afero file.
func encodeWAV(fs afero.Fs, name string, pcm []int16, sampleRate int) ([]byte, error) {
	f, err := fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	defer func() {
		_ = f.Close()
		_ = fs.Remove(name)
	}()

	enc := wav.NewEncoder(f, sampleRate, audio_frame.BitDepth, 1, 1)
	if err := enc.Write(audio_frame.IntBuffer(pcm, sampleRate)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return io.ReadAll(f)
}
