package playback_gate

import (
	"sync/atomic"
	"time"
)

// DefaultTail keeps the gate closed briefly after playback ends so the
// microphone does not pick up the tail of the assistant's own voice.
const DefaultTail = 500 * time.Millisecond

// Flag is a gate driven by the playback component through SetSpeaking.
type Flag struct {
	tail time.Duration
	now  func() time.Time

	speaking atomic.Bool
	// stoppedAt holds the monotonic offset from epoch of the last
	// speaking -> silent edge, in nanoseconds.
	stoppedAt atomic.Int64
	epoch     time.Time
}

type FlagConfig struct {
	Tail time.Duration
	Now  func() time.Time
}

func NewFlag(cfg *FlagConfig) *Flag {
	f := &Flag{
		tail: DefaultTail,
		now:  time.Now,
	}

	if cfg != nil {
		if cfg.Tail >= 0 {
			f.tail = cfg.Tail
		}
		if cfg.Now != nil {
			f.now = cfg.Now
		}
	}

	f.epoch = f.now()
	f.stoppedAt.Store(-1)

	return f
}

// SetSpeaking is called by the playback component whenever playback starts
// or stops.
func (f *Flag) SetSpeaking(speaking bool) {
	if speaking {
		f.speaking.Store(true)
		return
	}

	if f.speaking.Swap(false) {
		f.stoppedAt.Store(int64(f.now().Sub(f.epoch)))
	}
}

func (f *Flag) IsAssistantSpeaking() bool {
	if f.speaking.Load() {
		return true
	}

	stopped := f.stoppedAt.Load()
	if stopped < 0 || f.tail == 0 {
		return false
	}

	return f.now().Sub(f.epoch) < time.Duration(stopped)+f.tail
}

var _ Interface = (*Flag)(nil)
