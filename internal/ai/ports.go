package ai

import (
	"context"
	"io"
)

// Streamer is the completion provider. It knows nothing about conversations or the DB.
// Stream returns the raw server-sent event body; the caller must close it.
type Streamer interface {
	Stream(
		ctx context.Context,
		systemPrompt string,
		history []Message,
	) (io.ReadCloser, error)
}

// Message is one turn of the dialogue as sent to the provider.
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}
