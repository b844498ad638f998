package chat

import (
	"context"

	"github.com/pkg/errors"
)

// ResolveConversation returns the conversation a turn belongs to. An explicit
// conversation id is trusted as is; otherwise the session's active
// conversation is reused or created.
func ResolveConversation(ctx context.Context, store Store, sessionID, conversationID string) (string, error) {
	if conversationID != "" {
		return conversationID, nil
	}
	if sessionID == "" {
		return "", errors.New("session id is required")
	}

	id, created, err := store.FindOrCreateActive(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if created {
		conversationsCreated.Inc()
	}
	return id, nil
}
