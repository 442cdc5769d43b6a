package frame_source

import "assistant-ears/audio_frame"

// Interface opens capture streams on one audio device.
type Interface interface {
	// Open acquires the device and starts capturing. Only one stream may be
	// open per process; a second Open fails with ErrDeviceBusy until the first
	// stream is closed.
	Open(format audio_frame.Format) (Stream, error)
}

// Reader is the read side of a Stream. Consumers that only pull frames take
// a Reader so they never close the device they were lent.
type Reader interface {
	// ReadFrame blocks until a full frame is available. It returns a
	// *DeviceError if the device fails mid-stream, and io.EOF once a finite
	// source is exhausted.
	ReadFrame() (audio_frame.Frame, error)
}

// Stream is an open capture stream.
type Stream interface {
	Reader

	// Close stops capturing and releases the device. Safe to call more than once.
	Close() error
}
