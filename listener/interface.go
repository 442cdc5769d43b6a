package listener

import (
	"context"
	"errors"
)

// ErrRunning is returned by Run when the session is already running.
var ErrRunning = errors.New("listener: already running")

type Interface interface {
	// Run owns the capture device and drives the session until ctx is done,
	// an exit phrase is heard or the source is exhausted. Only a failure to
	// open the device on start ends Run with an error.
	Run(ctx context.Context) error

	// Trigger activates the session as if the wake phrase had been heard.
	// Safe to call from any goroutine; repeated calls before the session
	// reacts collapse into one.
	Trigger()

	// State reports the current session state.
	State() State
}

// State is the session's position in its wake/capture cycle.
type State int32

const (
	StateIdle State = iota
	StateArmedForWake
	StateActivated
	StateCapturing
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmedForWake:
		return "armed_for_wake"
	case StateActivated:
		return "activated"
	case StateCapturing:
		return "capturing"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Status lines shown to the user while the session runs.
const (
	StatusOnline     = "Online"
	StatusActivated  = "Activated"
	StatusListening  = "Listening..."
	StatusProcessing = "Processing..."
	StatusIdle       = "Idle"
	StatusReady      = "Ready"
	StatusShutdown   = "Shutting down..."
	StatusError      = "Error"
)
