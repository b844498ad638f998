package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusClosed   Status = "closed"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusClosed, StatusArchived:
		return true
	}
	return false
}

var (
	ErrNotFound = errors.New("conversation not found")
	// ErrConflict: another conversation of the same session is already active
	ErrConflict = errors.New("session already has an active conversation")
)

type Conversation struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	VisitorName  *string    `json:"visitorName,omitempty"`
	VisitorEmail *string    `json:"visitorEmail,omitempty"`
	VisitorPhone *string    `json:"visitorPhone,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ContactUpdate is a partial update, nil fields are left untouched.
type ContactUpdate struct {
	Name  *string
	Email *string
	Phone *string
}

func (u ContactUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil
}

type ConversationFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Store is the persistence port, shared with the back-office.
type Store interface {
	FindOrCreateActive(ctx context.Context, sessionID string) (id string, created bool, err error)
	SaveMessage(ctx context.Context, msg *Message) error
	UpdateContact(ctx context.Context, conversationID string, u ContactUpdate) error

	ListConversations(ctx context.Context, f ConversationFilter) ([]Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	SetStatus(ctx context.Context, id string, status Status) error
	DeleteConversation(ctx context.Context, id string) error
}

// Turn is one inbound chat request.
type Turn struct {
	Messages       []TurnMessage
	SessionID      string
	ConversationID string
}

type TurnMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Service orchestrates one turn.
type Service interface {
	// Start resolves the conversation, persists the user turn and opens the
	// provider stream. Errors returned here happen before any byte is streamed.
	Start(ctx context.Context, turn Turn) (*Reply, error)
}
