package utterance_recorder

import "assistant-ears/utterance"

type Interface interface {
	// Save writes the utterance as a WAV file and returns its path.
	Save(u *utterance.Utterance) (string, error)
}
