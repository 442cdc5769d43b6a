package noise_floor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-ears/frame_source/mock"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := New(DefaultConfig())
	require.NoError(t, err)
	return tr
}

func TestNew_InitialState(t *testing.T) {
	tr := newTracker(t)

	st := tr.State()
	assert.Equal(t, 250.0, st.NoiseFloor)
	assert.Equal(t, 500.0, st.Threshold)
	assert.False(t, tr.Frozen())
}

func TestNew_Validation(t *testing.T) {
	cases := map[string]*Config{
		"nil":               nil,
		"negative min":      {InitialThreshold: 500, MinThreshold: -1, Alpha: 0.05, Factor: 2.5},
		"initial below min": {InitialThreshold: 200, MinThreshold: 300, Alpha: 0.05, Factor: 2.5},
		"zero alpha":        {InitialThreshold: 500, MinThreshold: 300, Alpha: 0, Factor: 2.5},
		"alpha above one":   {InitialThreshold: 500, MinThreshold: 300, Alpha: 1.5, Factor: 2.5},
		"zero factor":       {InitialThreshold: 500, MinThreshold: 300, Alpha: 0.05, Factor: 0},
	}

	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestObserve_ReturnsLoudness(t *testing.T) {
	tr := newTracker(t)
	assert.Equal(t, 120.0, tr.Observe(mock.Constant(120, 1024)))
	assert.Equal(t, 0.0, tr.Observe(nil))
}

func TestObserve_ConvergesToMinThresholdOnSilence(t *testing.T) {
	tr := newTracker(t)

	for i := 0; i < 1000; i++ {
		tr.Observe(mock.Constant(0, 1024))
	}

	st := tr.State()
	assert.InDelta(t, 0, st.NoiseFloor, 1e-6)
	assert.Equal(t, 300.0, st.Threshold)
}

func TestObserve_ConvergesToFactorTimesConstantNoise(t *testing.T) {
	// Threshold starts at 500, so 200 is classified as noise and
	// factor*200 = 500 keeps it noise at every step.
	tr := newTracker(t)

	for i := 0; i < 2000; i++ {
		tr.Observe(mock.Constant(200, 1024))
	}

	st := tr.State()
	assert.InDelta(t, 200, st.NoiseFloor, 1e-3)
	assert.InDelta(t, 500, st.Threshold, 1e-2)
}

func TestObserve_LoudFramesDoNotAdapt(t *testing.T) {
	tr := newTracker(t)

	before := tr.State()
	for i := 0; i < 50; i++ {
		tr.Observe(mock.Constant(600, 1024))
	}
	assert.Equal(t, before, tr.State())

	// Exactly at the threshold is not below it.
	tr.Observe(mock.Constant(500, 1024))
	assert.Equal(t, before, tr.State())
}

func TestObserve_SingleUpdate(t *testing.T) {
	tr := newTracker(t)

	tr.Observe(mock.Constant(100, 1024))

	st := tr.State()
	wantFloor := 250*0.95 + 100*0.05
	assert.InDelta(t, wantFloor, st.NoiseFloor, 1e-9)
	assert.InDelta(t, math.Max(300, wantFloor*2.5), st.Threshold, 1e-9)
}

func TestFreezeResume(t *testing.T) {
	tr := newTracker(t)

	tr.Freeze()
	require.True(t, tr.Frozen())

	before := tr.State()
	for i := 0; i < 100; i++ {
		tr.Observe(mock.Constant(10, 1024))
	}
	assert.Equal(t, before, tr.State())

	tr.Resume()
	tr.Observe(mock.Constant(10, 1024))
	assert.Less(t, tr.State().NoiseFloor, before.NoiseFloor)
}

func TestThresholdInvariant(t *testing.T) {
	tr := newTracker(t)

	amps := []int16{0, 50, 900, 120, 0, 0, 30, 400, 299, 5}
	for i := 0; i < 500; i++ {
		tr.Observe(mock.Constant(amps[i%len(amps)], 256))
		st := tr.State()
		require.GreaterOrEqual(t, st.Threshold, 300.0)
		require.InDelta(t, math.Max(300, st.NoiseFloor*2.5), st.Threshold, 1e-9)
	}
}

func TestIsSpeech(t *testing.T) {
	tr := newTracker(t)
	assert.True(t, tr.IsSpeech(501))
	assert.False(t, tr.IsSpeech(500))
}
