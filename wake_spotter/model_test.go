package wake_spotter_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant-ears/audio_frame"
	"assistant-ears/frame_source"
	sourcemock "assistant-ears/frame_source/mock"
	"assistant-ears/playback_gate"
	"assistant-ears/wake_spotter"
	"assistant-ears/wake_spotter/mock"
)

func scores(v float32) []wake_spotter.Score {
	return []wake_spotter.Score{{ModelName: "alfred", Value: v}}
}

func newModel(t *testing.T, scorer wake_spotter.Scorer, gate playback_gate.Interface, now func() time.Time) wake_spotter.Interface {
	t.Helper()
	spotter, err := wake_spotter.NewModel(&wake_spotter.ModelConfig{
		Scorer:    scorer,
		Gate:      gate,
		Threshold: 0.5,
		Now:       now,
	})
	require.NoError(t, err)
	return spotter
}

func frames(n int) []audio_frame.Frame {
	return sourcemock.Sequence(audio_frame.DefaultFrameSize, sourcemock.Repeat(1000, n)...)
}

func TestNewModel_Validation(t *testing.T) {
	_, err := wake_spotter.NewModel(nil)
	assert.Error(t, err)

	_, err = wake_spotter.NewModel(&wake_spotter.ModelConfig{Gate: playback_gate.Never})
	assert.Error(t, err)

	_, err = wake_spotter.NewModel(&wake_spotter.ModelConfig{Scorer: &mock.Scorer{}})
	assert.Error(t, err)

	_, err = wake_spotter.NewModel(&wake_spotter.ModelConfig{Scorer: &mock.Scorer{}, Gate: playback_gate.Never, Threshold: 1})
	assert.Error(t, err)
}

func TestModel_DetectsStrictlyAboveThreshold(t *testing.T) {
	scorer := &mock.Scorer{Results: [][]wake_spotter.Score{
		scores(0.1),
		scores(0.5),
		{{ModelName: "other", Value: 0.2}, {ModelName: "alfred", Value: 0.50001}},
	}}
	s := &sourcemock.Stream{Frames: frames(10)}

	detected, err := newModel(t, scorer, playback_gate.Never, nil).Detect(context.Background(), s, 0)
	require.NoError(t, err)
	assert.True(t, detected)
	assert.Equal(t, 3, scorer.Calls())
	assert.Equal(t, 3, s.Reads())
	assert.Equal(t, 1, scorer.Resets())
}

func TestModel_ScoreAtThresholdDoesNotDetect(t *testing.T) {
	scorer := &mock.Scorer{Default: scores(0.5)}
	s := &sourcemock.Stream{Frames: frames(20)}

	detected, err := newModel(t, scorer, playback_gate.Never, nil).Detect(context.Background(), s, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, detected)
	assert.Equal(t, 20, scorer.Calls())
}

func TestModel_GateOpenMeansNoScoring(t *testing.T) {
	scorer := &mock.Scorer{Default: scores(0.99)}
	s := &sourcemock.Stream{Frames: frames(30)}
	gate := playback_gate.Func(func() bool { return true })

	detected, err := newModel(t, scorer, gate, nil).Detect(context.Background(), s, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, detected)
	assert.Zero(t, scorer.Calls())
	assert.Equal(t, 31, s.Reads())
}

func TestModel_Timeout(t *testing.T) {
	clock := sourcemock.NewClock()
	scorer := &mock.Scorer{Default: scores(0.1)}
	s := &sourcemock.Stream{
		Frames:     frames(100),
		BeforeRead: clock.Ticking(64 * time.Millisecond),
	}

	detected, err := newModel(t, scorer, playback_gate.Never, clock.Now).Detect(context.Background(), s, time.Second)
	require.NoError(t, err)
	assert.False(t, detected)

	// 16 reads * 64ms = 1.024s
	assert.Equal(t, 16, s.Reads())
}

func TestModel_ScorerErrorsAreAbsorbed(t *testing.T) {
	scorer := &mock.Scorer{
		Errs:    []error{errors.New("onnx exploded"), errors.New("again")},
		Default: scores(0.9),
	}
	s := &sourcemock.Stream{Frames: frames(5)}

	detected, err := newModel(t, scorer, playback_gate.Never, nil).Detect(context.Background(), s, 0)
	require.NoError(t, err)
	assert.True(t, detected)
	assert.Equal(t, 3, scorer.Calls())
}

func TestModel_DeviceErrorPropagates(t *testing.T) {
	scorer := &mock.Scorer{Default: scores(0.1)}
	s := &sourcemock.Stream{
		Frames: frames(2),
		Err:    &frame_source.DeviceError{Op: "read", Err: errors.New("gone")},
	}

	_, err := newModel(t, scorer, playback_gate.Never, nil).Detect(context.Background(), s, 0)
	assert.True(t, frame_source.IsDeviceError(err))
}

func TestModel_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scorer := &mock.Scorer{Default: scores(0.1)}
	s := &sourcemock.Stream{
		Frames: frames(50),
		BeforeRead: func(i int) {
			if i == 2 {
				cancel()
			}
		},
	}

	_, err := newModel(t, scorer, playback_gate.Never, nil).Detect(ctx, s, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, s.Reads())
}

func TestScorerError(t *testing.T) {
	inner := errors.New("inner")
	err := error(&wake_spotter.ScorerError{Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "inner")
}
