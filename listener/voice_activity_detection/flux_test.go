package voice_activity_detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"assistant-ears/audio_frame"
)

func sine(freq float64, amplitude float64, size int) audio_frame.Frame {
	f := make(audio_frame.Frame, size)
	for i := range f {
		f[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return f
}

func TestFlux_FirstFrameIsZero(t *testing.T) {
	d := New(1024)
	assert.Equal(t, 0.0, d.Flux(sine(440, 8000, 1024)))
}

func TestFlux_SteadyToneHasNoFlux(t *testing.T) {
	d := New(1024)
	tone := sine(440, 8000, 1024)

	d.Flux(tone)
	assert.InDelta(t, 0, d.Flux(tone), 1e-9)
}

func TestFlux_OnsetAfterSilence(t *testing.T) {
	d := New(1024)

	d.Flux(make(audio_frame.Frame, 1024))
	onset := d.Flux(sine(440, 8000, 1024))

	assert.Greater(t, onset, 0.0)

	// Falling energy is rectified away.
	assert.InDelta(t, 0, d.Flux(make(audio_frame.Frame, 1024)), 1e-9)
}

func TestFlux_Reset(t *testing.T) {
	d := New(1024)

	d.Flux(make(audio_frame.Frame, 1024))
	d.Reset()

	assert.Equal(t, 0.0, d.Flux(sine(440, 8000, 1024)))
}

func TestFlux_FrameSizeChange(t *testing.T) {
	d := New(1024)

	d.Flux(sine(440, 8000, 1024))
	assert.Equal(t, 0.0, d.Flux(sine(440, 8000, 512)))
	assert.Equal(t, 0.0, d.Flux(nil))
}
