// Package mock provides a recording ai_bot.AIBotAPI.
package mock

import (
	"context"
	"sync"

	"assistant-ears/clients/ai_bot"
)

// Bot records transcripts and replies with Reply through the UI callback.
type Bot struct {
	mu sync.Mutex

	Reply string
	Err   error

	transcripts []string
}

func (b *Bot) Process(_ context.Context, transcript string, update ai_bot.UIUpdateFunc) error {
	b.mu.Lock()
	b.transcripts = append(b.transcripts, transcript)
	reply, err := b.Reply, b.Err
	b.mu.Unlock()

	if err != nil {
		return err
	}

	if update != nil && reply != "" {
		update(reply)
	}

	return nil
}

// Transcripts returns a copy of every transcript received. Thread-safe.
func (b *Bot) Transcripts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.transcripts))
	copy(out, b.transcripts)
	return out
}

var _ ai_bot.AIBotAPI = (*Bot)(nil)
