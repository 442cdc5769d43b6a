package frame_source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"assistant-ears/audio_frame"

	"github.com/gen2brain/malgo"
)

var errDeviceStopped = errors.New("capture device stopped")

// chunkBacklog bounds the callback queue; roughly two seconds of audio at
// typical period sizes.
const chunkBacklog = 64

type malgoImpl struct{}

// NewMalgo returns a capture source backed by miniaudio. It opens the default
// capture device of the platform's preferred backend.
func NewMalgo() Interface {
	return &malgoImpl{}
}

func (m *malgoImpl) Open(format audio_frame.Format) (Stream, error) {
	if err := acquireDevice(); err != nil {
		return nil, err
	}

	stream, err := m.open(format)
	if err != nil {
		releaseDevice()
		return nil, err
	}

	return stream, nil
}

func (m *malgoImpl) open(format audio_frame.Format) (*malgoStream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &DeviceError{Op: "initialize", Err: err}
	}

	s := &malgoStream{
		audioContext: ctx,
		channels:     format.Channels,
		frameBytes:   format.FrameSize * format.Channels * 2,
		chunks:       make(chan []byte, chunkBacklog),
		stopped:      make(chan struct{}),
		closed:       make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(format.FrameSize)
	deviceConfig.Alsa.NoMMap = 1

	s.device, err = malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		s.freeContext()
		return nil, &DeviceError{Op: "open", Err: err}
	}

	if err := s.device.Start(); err != nil {
		s.device.Uninit()
		s.freeContext()
		return nil, &DeviceError{Op: "start", Err: err}
	}

	slog.Info("microphone stream started",
		"backend", "malgo",
		"sample_rate", format.SampleRate,
		"frame_size", format.FrameSize,
	)

	return s, nil
}

type malgoStream struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	channels     int
	frameBytes   int

	chunks   chan []byte
	stopped  chan struct{}
	stopOnce sync.Once

	// pending is only touched by ReadFrame
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *malgoStream) onData(_, inputSamples []byte, _ uint32) {
	chunk := make([]byte, len(inputSamples))
	copy(chunk, inputSamples)

	select {
	case s.chunks <- chunk:
	default:
		slog.Debug("capture backlog full, dropping chunk", "bytes", len(chunk))
	}
}

func (s *malgoStream) onStop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

func (s *malgoStream) ReadFrame() (audio_frame.Frame, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	for len(s.pending) < s.frameBytes {
		select {
		case chunk := <-s.chunks:
			s.pending = append(s.pending, chunk...)
		case <-s.closed:
			return nil, ErrClosed
		case <-s.stopped:
			if s.isClosed() {
				return nil, ErrClosed
			}
			return nil, &DeviceError{Op: "read", Err: errDeviceStopped}
		}
	}

	raw := s.pending[:s.frameBytes]
	samples := make([]int16, s.frameBytes/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	s.pending = append(s.pending[:0], s.pending[s.frameBytes:]...)

	return audio_frame.Frame(audio_frame.DownmixInterleaved(samples, s.channels)), nil
}

func (s *malgoStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *malgoStream) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.closed)

		s.device.Uninit()
		err = s.freeContext()
		releaseDevice()
	})

	return err
}

func (s *malgoStream) freeContext() error {
	defer s.audioContext.Free()

	if err := s.audioContext.Uninit(); err != nil {
		return fmt.Errorf("frame_source: uninit audio context: %w", err)
	}
	return nil
}
