package frame_source

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrDeviceBusy is returned by Open while another stream holds the device.
	ErrDeviceBusy = errors.New("frame_source: audio device already open")

	// ErrClosed is returned by ReadFrame after Close.
	ErrClosed = errors.New("frame_source: stream closed")
)

// DeviceError reports a failure of the underlying capture device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("frame_source: device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsDeviceError reports whether err is or wraps a *DeviceError.
func IsDeviceError(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr)
}

var deviceInUse atomic.Bool

func acquireDevice() error {
	if !deviceInUse.CompareAndSwap(false, true) {
		return ErrDeviceBusy
	}
	return nil
}

func releaseDevice() {
	deviceInUse.Store(false)
}
