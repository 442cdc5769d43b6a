package audio_frame

import (
	"fmt"
	"time"

	"github.com/go-audio/audio"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFrameSize  = 1024
	BitDepth          = 16
)

// Format describes the PCM layout a stream is opened with.
type Format struct {
	SampleRate int
	Channels   int
	FrameSize  int
}

// DefaultFormat is 16 kHz mono, 1024 samples per frame (~64ms).
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		FrameSize:  DefaultFrameSize,
	}
}

// Validate reports the first non-positive field.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", f.Channels)
	}
	if f.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", f.FrameSize)
	}
	return nil
}

// FramePeriod is the wall-clock duration of one frame.
func (f Format) FramePeriod() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameSize) * time.Second / time.Duration(f.SampleRate)
}

// FramesPerSecond is SampleRate / FrameSize.
func (f Format) FramesPerSecond() float64 {
	if f.FrameSize <= 0 {
		return 0
	}
	return float64(f.SampleRate) / float64(f.FrameSize)
}

// Frame is one fixed-length chunk of signed 16-bit mono PCM. Streams hand out
// a fresh slice per frame, and consumers must not modify it.
type Frame []int16

// Loudness is the mean absolute amplitude of the frame.
func (f Frame) Loudness() float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(f))
}

// Normalize returns the frame as float32 samples in [-1.0, 1.0].
func (f Frame) Normalize() []float32 {
	out := make([]float32, len(f))
	for i, s := range f {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Flatten concatenates frames into one contiguous PCM buffer.
func Flatten(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// DownmixInterleaved averages interleaved multi-channel samples into mono.
func DownmixInterleaved(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// IntBuffer wraps mono PCM in a go-audio buffer for encoders and decoders.
func IntBuffer(pcm []int16, sampleRate int) *audio.IntBuffer {
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
}
