package voice_activity_detection

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"assistant-ears/audio_frame"
)

type fluxImpl struct {
	window []float64
	prev   []float64
}

// New returns a spectral flux detector for frames of frameSize samples.
func New(frameSize int) Interface {
	return &fluxImpl{
		window: window.Hann(frameSize),
	}
}

// Flux returns the half-wave rectified spectral flux between frame and the
// previous frame, averaged over frequency bins. The first frame after a
// Reset has no reference and yields 0.
func (f *fluxImpl) Flux(frame audio_frame.Frame) float64 {
	if len(frame) == 0 {
		return 0
	}

	if len(f.window) != len(frame) {
		f.window = window.Hann(len(frame))
		f.prev = nil
	}

	samples := make([]float64, len(frame))
	for i, s := range frame {
		samples[i] = float64(s) / 32768.0 * f.window[i]
	}

	spectrum := fft.FFTReal(samples)
	bins := len(spectrum)/2 + 1

	mag := make([]float64, bins)
	for i := 0; i < bins; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}

	prev := f.prev
	f.prev = mag

	if prev == nil {
		return 0
	}

	var flux float64
	for i := range mag {
		if d := mag[i] - prev[i]; d > 0 {
			flux += d
		}
	}

	return flux / float64(bins)
}

func (f *fluxImpl) Reset() {
	f.prev = nil
}
