package utterance

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
	"assistant-ears/frame_source/mock"
	"assistant-ears/listener/voice_activity_detection"
	"assistant-ears/noise_floor"
	"assistant-ears/playback_gate"
)

const frameSize = audio_frame.DefaultFrameSize

type fixture struct {
	tracker *noise_floor.Tracker
	clock   *mock.Clock
	seg     Interface
}

func newFixture(t *testing.T, gate playback_gate.Interface, withClock bool) *fixture {
	t.Helper()

	tracker, err := noise_floor.New(noise_floor.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{tracker: tracker}
	cfg := &Config{
		Tracker: tracker,
		Gate:    gate,
		Format:  audio_frame.DefaultFormat(),
	}
	if withClock {
		f.clock = mock.NewClock()
		cfg.Now = f.clock.Now
	}

	f.seg, err = New(cfg)
	require.NoError(t, err)
	return f
}

// stream returns a mock stream that costs one frame period per read when the
// fixture has a clock.
func (f *fixture) stream(frames []audio_frame.Frame) *mock.Stream {
	s := &mock.Stream{Frames: frames}
	if f.clock != nil {
		s.BeforeRead = f.clock.Ticking(audio_frame.DefaultFormat().FramePeriod())
	}
	return s
}

func amplitudes(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	tracker, err := noise_floor.New(noise_floor.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Gate: playback_gate.Never, Format: audio_frame.DefaultFormat()})
	assert.Error(t, err, "missing tracker")

	_, err = New(&Config{Tracker: tracker, Format: audio_frame.DefaultFormat()})
	assert.Error(t, err, "missing gate")

	_, err = New(&Config{Tracker: tracker, Gate: playback_gate.Never})
	assert.Error(t, err, "zero format")

	_, err = New(&Config{
		Tracker:         tracker,
		Gate:            playback_gate.Never,
		Format:          audio_frame.DefaultFormat(),
		SilenceDuration: 2 * time.Second,
		MaxDuration:     time.Second,
	})
	assert.Error(t, err, "max shorter than silence")
}

func TestCapture_QuietInputReturnsEmptyAtCap(t *testing.T) {
	f := newFixture(t, playback_gate.Never, true)
	s := f.stream(mock.Sequence(frameSize, mock.Repeat(100, 600)...))

	u, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, u)

	// 30s / 64ms rounded up.
	assert.Equal(t, 469, s.Reads())
	assert.False(t, f.tracker.Frozen())
}

func TestCapture_QuietInputFrameCapWithoutClockProgress(t *testing.T) {
	f := newFixture(t, playback_gate.Never, false)
	s := f.stream(mock.Sequence(frameSize, mock.Repeat(0, 1000)...))

	u, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, 469, s.Reads())
}

func TestCapture_LoudThenSilence(t *testing.T) {
	// 1.5s at 16 kHz / 1024 is 23.4375 frames, so the 24th silent frame ends
	// the utterance.
	const loud = 7
	const silent = 24

	// The leading quiet frames lift the threshold above 500 (floor*2.5), so
	// speech here is well clear of it.
	f := newFixture(t, playback_gate.Never, true)
	amps := amplitudes(mock.Repeat(100, 3), mock.Repeat(5000, loud), mock.Repeat(100, silent+6), mock.Repeat(5000, 5))
	s := f.stream(mock.Sequence(frameSize, amps...))

	u, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, loud+silent, u.Frames)
	assert.Equal(t, silent, u.TrailingSilentFrames)
	assert.Len(t, u.PCM, (loud+silent)*frameSize)
	assert.Equal(t, EndSilence, u.End)
	assert.Equal(t, 16000, u.SampleRate)
	assert.Equal(t, 5000.0, u.PeakLoudness)
	assert.Equal(t, time.Duration(loud+silent)*64*time.Millisecond, u.Duration)
	assert.Equal(t, 3+loud+silent, s.Reads(), "the 25th silent frame must not be consumed")
	assert.False(t, f.tracker.Frozen())

	// The leading quiet frames are not part of the utterance.
	assert.Equal(t, int16(5000), u.PCM[0])
}

func TestCapture_SilenceEndsOnFrameCountAlone(t *testing.T) {
	// The clock never advances, the frame count still ends the utterance.
	f := newFixture(t, playback_gate.Never, false)
	s := f.stream(mock.Sequence(frameSize, amplitudes(mock.Repeat(600, 10), mock.Repeat(100, 40))...))

	u, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, 34, u.Frames)
	assert.Len(t, u.PCM, 34*frameSize)
	assert.Equal(t, 24, u.TrailingSilentFrames)
	assert.Equal(t, EndSilence, u.End)
	assert.Equal(t, 34, s.Reads())
}

func TestCapture_SeparatePhrasesDoNotMerge(t *testing.T) {
	f := newFixture(t, playback_gate.Never, true)
	amps := amplitudes(mock.Repeat(600, 10), mock.Repeat(100, 100), mock.Repeat(600, 10))
	s := f.stream(mock.Sequence(frameSize, amps...))

	first, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 34, first.Frames)
	assert.Equal(t, EndSilence, first.End)

	second, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 10, second.Frames)
	assert.Equal(t, 0, second.TrailingSilentFrames)
	assert.Equal(t, EndOfStream, second.End)
	assert.Equal(t, int16(600), second.PCM[0])
}

func TestCapture_IdenticalInputIdenticalOutput(t *testing.T) {
	amps := amplitudes(mock.Repeat(800, 12), mock.Repeat(50, 25))

	run := func() *Utterance {
		f := newFixture(t, playback_gate.Never, true)
		u, err := f.seg.Capture(context.Background(), f.stream(mock.Sequence(frameSize, amps...)))
		require.NoError(t, err)
		require.NotNil(t, u)
		return u
	}

	a, b := run(), run()
	assert.Equal(t, a.PCM, b.PCM)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCapture_GateOpenAppendsNothing(t *testing.T) {
	f := newFixture(t, playback_gate.Func(func() bool { return true }), true)
	before := f.tracker.State()

	s := f.stream(mock.Sequence(frameSize, mock.Repeat(9000, 40)...))

	u, err := f.seg.Capture(context.Background(), s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Nil(t, u)
	assert.Equal(t, 40, s.Reads())
	assert.Equal(t, before, f.tracker.State(), "gated frames must not reach the tracker")
}

func TestCapture_GatedFramesAreSkipped(t *testing.T) {
	var speaking bool
	f := newFixture(t, playback_gate.Func(func() bool { return speaking }), true)

	// The assistant's own voice for the first five frames, then the user.
	amps := amplitudes(mock.Repeat(5000, 5), mock.Repeat(600, 3), mock.Repeat(100, 25))
	s := f.stream(mock.Sequence(frameSize, amps...))
	tick := s.BeforeRead
	s.BeforeRead = func(i int) {
		tick(i)
		speaking = i < 5
	}

	u, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, 27, u.Frames)
	assert.Equal(t, 600.0, u.PeakLoudness)
}

func TestCapture_HardCapWhileRecording(t *testing.T) {
	f := newFixture(t, playback_gate.Never, true)
	s := f.stream(mock.Sequence(frameSize, mock.Repeat(700, 600)...))

	u, err := f.seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, EndMaxDuration, u.End)
	assert.Equal(t, 469, u.Frames)
	assert.False(t, f.tracker.Frozen())
}

func TestCapture_DeviceErrorPropagates(t *testing.T) {
	f := newFixture(t, playback_gate.Never, true)
	s := f.stream(mock.Sequence(frameSize, mock.Repeat(600, 3)...))
	s.Err = &frame_source.DeviceError{Op: "read", Err: errors.New("unplugged")}

	u, err := f.seg.Capture(context.Background(), s)
	assert.Nil(t, u)

	var devErr *frame_source.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "read", devErr.Op)
	assert.False(t, f.tracker.Frozen(), "tracker resumes on aborted capture")
}

func TestCapture_ContextCanceled(t *testing.T) {
	f := newFixture(t, playback_gate.Never, true)

	ctx, cancel := context.WithCancel(context.Background())
	s := f.stream(mock.Sequence(frameSize, mock.Repeat(600, 100)...))
	s.BeforeRead = func(i int) {
		if i == 4 {
			cancel()
		}
	}

	u, err := f.seg.Capture(ctx, s)
	assert.Nil(t, u)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, s.Reads())
}

func TestCapture_NoiseFloorAdaptsBeforeSpeechOnly(t *testing.T) {
	f := newFixture(t, playback_gate.Never, true)

	amps := amplitudes(mock.Repeat(40, 20), mock.Repeat(600, 5), mock.Repeat(40, 25))
	_, err := f.seg.Capture(context.Background(), f.stream(mock.Sequence(frameSize, amps...)))
	require.NoError(t, err)

	// Only the twenty leading quiet frames were folded in.
	want := 250.0
	for i := 0; i < 20; i++ {
		want = want*0.95 + 40*0.05
	}
	assert.InDelta(t, want, f.tracker.State().NoiseFloor, 1e-9)
}

func TestCapture_PeakFlux(t *testing.T) {
	tracker, err := noise_floor.New(noise_floor.DefaultConfig())
	require.NoError(t, err)

	clock := mock.NewClock()
	seg, err := New(&Config{
		Tracker: tracker,
		Gate:    playback_gate.Never,
		Format:  audio_frame.DefaultFormat(),
		Flux:    voice_activity_detection.New(frameSize),
		Now:     clock.Now,
	})
	require.NoError(t, err)

	s := &mock.Stream{
		Frames:     mock.Sequence(frameSize, amplitudes([]int16{600, 900, 900}, mock.Repeat(100, 25))...),
		BeforeRead: clock.Ticking(64 * time.Millisecond),
	}

	u, err := seg.Capture(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Greater(t, u.PeakFlux, 0.0)
}

func TestUtterance_Buffer(t *testing.T) {
	u := &Utterance{PCM: []int16{1, -2, 3}, SampleRate: 16000}

	buf := u.Buffer()
	assert.Equal(t, []int{1, -2, 3}, buf.Data)
	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
}
