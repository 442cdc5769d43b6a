package playback_gate

// Interface reports whether the assistant is producing audible speech.
// Implementations must be cheap, non-blocking and safe to call while the
// playback component updates its state from another goroutine.
type Interface interface {
	IsAssistantSpeaking() bool
}

// Func adapts a plain function to Interface.
type Func func() bool

func (f Func) IsAssistantSpeaking() bool {
	return f()
}

// Never is a gate for setups without local playback.
var Never Interface = Func(func() bool { return false })
