package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vovarama1992/chat-relay/internal/ai"
)

// InvalidTurnError reports a request the relay refuses to process.
type InvalidTurnError struct {
	Reason string
}

func (e *InvalidTurnError) Error() string {
	return "invalid turn: " + e.Reason
}

type service struct {
	store        Store
	ai           ai.Streamer
	systemPrompt string
	timeout      time.Duration
}

func NewService(store Store, streamer ai.Streamer, systemPrompt string, timeout time.Duration) Service {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = ai.DefaultSystemPrompt
	}
	return &service{
		store:        store,
		ai:           streamer,
		systemPrompt: systemPrompt,
		timeout:      timeout,
	}
}

func validateTurn(turn Turn) error {
	if strings.TrimSpace(turn.SessionID) == "" {
		return &InvalidTurnError{Reason: "sessionId is required"}
	}
	if len(turn.Messages) == 0 {
		return &InvalidTurnError{Reason: "messages must not be empty"}
	}
	for i, m := range turn.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return &InvalidTurnError{Reason: fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role)}
		}
	}
	last := turn.Messages[len(turn.Messages)-1]
	if last.Role != RoleUser {
		return &InvalidTurnError{Reason: "last message must come from the user"}
	}
	if strings.TrimSpace(last.Content) == "" {
		return &InvalidTurnError{Reason: "last message is empty"}
	}
	return nil
}

func (s *service) Start(ctx context.Context, turn Turn) (*Reply, error) {
	if err := validateTurn(turn); err != nil {
		turnsTotal.WithLabelValues(outcomeRejected).Inc()
		return nil, err
	}

	conversationID, err := ResolveConversation(ctx, s.store, turn.SessionID, turn.ConversationID)
	if err != nil {
		turnsTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, errors.Wrap(err, "resolve conversation")
	}

	clog := log.WithFields(log.Fields{
		"component":    "chat",
		"conversation": conversationID,
		"session":      turn.SessionID,
	})

	userText := turn.Messages[len(turn.Messages)-1].Content

	// the user turn is stored before the provider is called
	if err := s.store.SaveMessage(ctx, &Message{
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        userText,
	}); err != nil {
		turnsTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, errors.Wrap(err, "save user message")
	}

	s.mergeContact(ctx, clog, conversationID, userText)

	history := make([]ai.Message, 0, len(turn.Messages))
	for _, m := range turn.Messages {
		history = append(history, ai.Message{Role: string(m.Role), Text: m.Content})
	}

	var (
		pctx   context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		pctx, cancel = context.WithCancel(ctx)
	}

	started := time.Now()
	body, err := s.ai.Stream(pctx, s.systemPrompt, history)
	if err != nil {
		cancel()
		turnsTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, errors.Wrap(err, "open completion stream")
	}

	clog.Debug("completion stream opened")

	return &Reply{
		ConversationID: conversationID,
		store:          s.store,
		body:           body,
		cancel:         cancel,
		userText:       userText,
		started:        started,
		log:            clog,
	}, nil
}

// mergeContact stores any email or phone found in the user's text. Best effort.
func (s *service) mergeContact(ctx context.Context, clog *log.Entry, conversationID, text string) {
	c := ExtractContact(text)
	u := ContactUpdate{Email: c.Email, Phone: c.Phone}
	if u.Empty() {
		return
	}
	if err := s.store.UpdateContact(ctx, conversationID, u); err != nil {
		clog.WithError(err).Warn("could not store visitor contact")
		return
	}
	if c.Email != nil {
		contactsExtracted.WithLabelValues("email").Inc()
	}
	if c.Phone != nil {
		contactsExtracted.WithLabelValues("phone").Inc()
	}
}

// Reply is an open completion stream bound to a conversation.
type Reply struct {
	ConversationID string

	store    Store
	body     io.ReadCloser
	cancel   context.CancelFunc
	userText string
	started  time.Time
	log      *log.Entry
}

// Relay streams the reply to dst, stores the assistant turn and finally sends
// the done marker. On error the stream ends with an error event and without
// the marker; partial text is not stored.
func (r *Reply) Relay(ctx context.Context, dst StreamWriter) error {
	defer r.Close()

	text, err := Relay(r.body, dst)
	providerStreamDuration.Observe(time.Since(r.started).Seconds())
	if err != nil {
		turnsTotal.WithLabelValues(outcomeInterrupted).Inc()
		r.log.WithError(err).Warnf("stream interrupted, discarding %d bytes of partial reply", len(text))
		abort(dst)
		return err
	}

	if text == "" {
		turnsTotal.WithLabelValues(outcomeEmpty).Inc()
		r.log.Warn("provider stream ended without content")
	} else {
		if err := r.store.SaveMessage(ctx, &Message{
			ConversationID: r.ConversationID,
			Role:           RoleAssistant,
			Content:        text,
		}); err != nil {
			turnsTotal.WithLabelValues(outcomeFailed).Inc()
			r.log.WithError(err).Error("could not store assistant message")
			abort(dst)
			return errors.Wrap(err, "save assistant message")
		}

		if name := ExtractName(r.userText); name != nil {
			if err := r.store.UpdateContact(ctx, r.ConversationID, ContactUpdate{Name: name}); err != nil {
				r.log.WithError(err).Warn("could not store visitor name")
			} else {
				contactsExtracted.WithLabelValues("name").Inc()
			}
		}
		turnsTotal.WithLabelValues(outcomeCompleted).Inc()
	}

	if _, err := dst.Write(doneEvent); err != nil {
		return errors.Wrap(err, "write done marker")
	}
	return dst.Flush()
}

// Close releases the provider stream. Safe to call more than once.
func (r *Reply) Close() error {
	r.cancel()
	return r.body.Close()
}

func abort(dst StreamWriter) {
	if _, err := dst.Write(interruptedEvent); err == nil {
		_ = dst.Flush()
	}
}
