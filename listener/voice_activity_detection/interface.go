package voice_activity_detection

import "assistant-ears/audio_frame"

// Interface measures how much the spectrum of consecutive frames changes.
// Speech onsets produce large positive flux; steady hum produces almost none.
type Interface interface {
	Flux(frame audio_frame.Frame) float64
	Reset()
}
