package frame_source

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"assistant-ears/audio_frame"

	"github.com/gordonklaus/portaudio"
)

type portAudioImpl struct {
	deviceName string
}

type PortAudioConfig struct {
	// DeviceName selects an input device by name. Empty uses the default
	// recording device.
	DeviceName string
}

func NewPortAudio(cfg *PortAudioConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	return &portAudioImpl{
		deviceName: cfg.DeviceName,
	}, nil
}

func (p *portAudioImpl) Open(format audio_frame.Format) (Stream, error) {
	if err := acquireDevice(); err != nil {
		return nil, err
	}

	stream, err := p.open(format)
	if err != nil {
		releaseDevice()
		return nil, err
	}

	return stream, nil
}

func (p *portAudioImpl) open(format audio_frame.Format) (*portAudioStream, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, &DeviceError{Op: "initialize", Err: err}
	}

	in := make([]int16, format.FrameSize*format.Channels)

	var stream *portaudio.Stream

	if p.deviceName == "" {
		stream, err = portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), format.FrameSize, in)
	} else {
		stream, err = p.openNamed(format, in)
	}

	if err != nil {
		freeAudio()
		return nil, &DeviceError{Op: "open", Err: err}
	}

	err = stream.Start()
	if err != nil {
		stream.Close()
		freeAudio()
		return nil, &DeviceError{Op: "start", Err: err}
	}

	slog.Info("microphone stream started",
		"backend", "portaudio",
		"device", p.deviceName,
		"sample_rate", format.SampleRate,
		"frame_size", format.FrameSize,
	)

	return &portAudioStream{
		stream:   stream,
		in:       in,
		channels: format.Channels,
	}, nil
}

func (p *portAudioImpl) openNamed(format audio_frame.Format, in []int16) (*portaudio.Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	for _, dev := range devices {
		if dev.Name != p.deviceName || dev.MaxInputChannels < format.Channels {
			continue
		}

		params := portaudio.LowLatencyParameters(dev, nil)
		params.Input.Channels = format.Channels
		params.SampleRate = float64(format.SampleRate)
		params.FramesPerBuffer = format.FrameSize

		return portaudio.OpenStream(params, in)
	}

	return nil, fmt.Errorf("input device %q not found", p.deviceName)
}

func freeAudio() {
	err := portaudio.Terminate()
	if err != nil {
		slog.Warn("error while freeing audio", "err", err)
	}
}

type portAudioStream struct {
	stream   *portaudio.Stream
	in       []int16
	channels int

	mu     sync.Mutex
	closed bool
}

func (s *portAudioStream) ReadFrame() (audio_frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	err := s.stream.Read()
	if errors.Is(err, portaudio.InputOverflowed) {
		// samples were dropped by the driver; the buffer still holds a full frame
		slog.Debug("microphone input overflowed")
	} else if err != nil {
		return nil, &DeviceError{Op: "read", Err: err}
	}

	samples := make([]int16, len(s.in))
	copy(samples, s.in)

	return audio_frame.Frame(audio_frame.DownmixInterleaved(samples, s.channels)), nil
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	defer releaseDevice()
	defer freeAudio()

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
