package ai_bot

import "context"

// UIUpdateFunc shows text to the user while a command is handled.
type UIUpdateFunc func(text string)

type AIBotAPI interface {
	// Process hands a finalized transcript to the bot and reports its reply
	// through update.
	Process(ctx context.Context, transcript string, update UIUpdateFunc) error
}
