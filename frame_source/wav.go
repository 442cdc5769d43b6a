package frame_source

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"assistant-ears/audio_frame"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

type wavImpl struct {
	fileSys  afero.Fs
	path     string
	realtime bool
}

type WavConfig struct {
	FileSys afero.Fs
	Path    string

	// Realtime paces ReadFrame to one frame per frame period, as a live
	// microphone would.
	Realtime bool
}

// NewWav returns a source that replays a 16-bit PCM WAV file.
func NewWav(cfg *WavConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("path is empty")
	}

	return &wavImpl{
		fileSys:  cfg.FileSys,
		path:     cfg.Path,
		realtime: cfg.Realtime,
	}, nil
}

func (w *wavImpl) Open(format audio_frame.Format) (Stream, error) {
	if err := acquireDevice(); err != nil {
		return nil, err
	}

	stream, err := w.open(format)
	if err != nil {
		releaseDevice()
		return nil, err
	}

	return stream, nil
}

func (w *wavImpl) open(format audio_frame.Format) (*wavStream, error) {
	f, err := w.fileSys.Open(w.path)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("%s is not a valid wav file", w.path)}
	}

	if int(decoder.SampleRate) != format.SampleRate {
		f.Close()
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("%s has sample rate %d, want %d", w.path, decoder.SampleRate, format.SampleRate)}
	}

	if decoder.BitDepth != audio_frame.BitDepth {
		f.Close()
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("%s has bit depth %d, want %d", w.path, decoder.BitDepth, audio_frame.BitDepth)}
	}

	channels := int(decoder.NumChans)

	slog.Info("replaying wav file", "path", w.path, "channels", channels, "realtime", w.realtime)

	return &wavStream{
		file:      f,
		decoder:   decoder,
		channels:  channels,
		frameSize: format.FrameSize,
		period:    format.FramePeriod(),
		realtime:  w.realtime,
		buf: &audio.IntBuffer{
			Format: decoder.Format(),
			Data:   make([]int, format.FrameSize*channels),
		},
	}, nil
}

type wavStream struct {
	file      afero.File
	decoder   *wav.Decoder
	channels  int
	frameSize int
	period    time.Duration
	realtime  bool
	buf       *audio.IntBuffer

	mu       sync.Mutex
	eof      bool
	closed   bool
	deadline time.Time
}

func (s *wavStream) ReadFrame() (audio_frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.eof {
		return nil, io.EOF
	}

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return nil, &DeviceError{Op: "read", Err: err}
	}

	if n == 0 {
		s.eof = true
		return nil, io.EOF
	}

	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(s.buf.Data[i])
	}

	frame := make(audio_frame.Frame, s.frameSize)
	copy(frame, audio_frame.DownmixInterleaved(samples, s.channels))

	s.pace()

	return frame, nil
}

func (s *wavStream) pace() {
	if !s.realtime {
		return
	}

	now := time.Now()
	if s.deadline.IsZero() {
		s.deadline = now
	}

	s.deadline = s.deadline.Add(s.period)
	if wait := s.deadline.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
}

func (s *wavStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	defer releaseDevice()

	return s.file.Close()
}
