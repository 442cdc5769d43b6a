// Package mock provides test doubles for the frame_source interfaces.
//
// Stream replays a fixed list of frames and then reports io.EOF (or Err).
// Clock is a manually advanced time source; pair it with Stream.BeforeRead to
// make every frame cost one frame period of monotonic time.
package mock

import (
	"io"
	"sync"
	"time"

	"assistant-ears/audio_frame"
	"assistant-ears/frame_source"
)

// Device is a mock implementation of frame_source.Interface.
type Device struct {
	mu sync.Mutex

	// Streams are handed out by successive Open calls. Once exhausted, Open
	// returns an empty stream that reports io.EOF immediately.
	Streams []*Stream

	// OpenErrs, if non-empty, are returned by successive Open calls before any
	// stream is handed out. A nil entry lets that call succeed.
	OpenErrs []error

	// OpenCalls records the format of every Open call in order.
	OpenCalls []audio_frame.Format

	next int
}

// Open records the call and returns the next configured stream.
func (d *Device) Open(format audio_frame.Format) (frame_source.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	call := len(d.OpenCalls)
	d.OpenCalls = append(d.OpenCalls, format)

	if call < len(d.OpenErrs) && d.OpenErrs[call] != nil {
		return nil, d.OpenErrs[call]
	}

	if d.next < len(d.Streams) {
		s := d.Streams[d.next]
		d.next++
		return s, nil
	}

	return &Stream{}, nil
}

// OpenCount returns the number of Open calls. Thread-safe.
func (d *Device) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

var _ frame_source.Interface = (*Device)(nil)

// Stream is a mock implementation of frame_source.Stream.
type Stream struct {
	mu sync.Mutex

	// Frames are returned in order by ReadFrame.
	Frames []audio_frame.Frame

	// Err is returned once Frames are exhausted. Defaults to io.EOF.
	Err error

	// BeforeRead, if set, is called with the zero-based read index before
	// every ReadFrame.
	BeforeRead func(i int)

	reads      int
	closeCalls int
}

// ReadFrame returns the next frame, or Err/io.EOF when none are left.
func (s *Stream) ReadFrame() (audio_frame.Frame, error) {
	s.mu.Lock()
	i := s.reads
	s.reads++
	hook := s.BeforeRead
	s.mu.Unlock()

	if hook != nil {
		hook(i)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeCalls > 0 {
		return nil, frame_source.ErrClosed
	}

	if i < len(s.Frames) {
		return s.Frames[i], nil
	}

	if s.Err != nil {
		return nil, s.Err
	}

	return nil, io.EOF
}

// Close records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// Reads returns how many times ReadFrame was called. Thread-safe.
func (s *Stream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// CloseCalls returns how many times Close was called. Thread-safe.
func (s *Stream) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var _ frame_source.Stream = (*Stream)(nil)

// Constant returns a frame whose mean absolute amplitude is exactly amplitude.
// Samples alternate in sign so the frame is not a DC offset.
func Constant(amplitude int16, size int) audio_frame.Frame {
	f := make(audio_frame.Frame, size)
	for i := range f {
		if i%2 == 0 {
			f[i] = amplitude
		} else {
			f[i] = -amplitude
		}
	}
	return f
}

// Sequence builds one Constant frame per amplitude.
func Sequence(size int, amplitudes ...int16) []audio_frame.Frame {
	frames := make([]audio_frame.Frame, len(amplitudes))
	for i, a := range amplitudes {
		frames[i] = Constant(a, size)
	}
	return frames
}

// Repeat returns n copies of amplitude, for use with Sequence.
func Repeat(amplitude int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

// Clock is a manually advanced monotonic clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at an arbitrary fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Ticking returns a BeforeRead hook that advances c by period on every read.
func (c *Clock) Ticking(period time.Duration) func(int) {
	return func(int) { c.Advance(period) }
}
