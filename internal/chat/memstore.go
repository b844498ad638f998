package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore keeps conversations in process memory. Used for local runs
// without Postgres and in tests; it honours the same invariants as repo.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	nextMsgID     int64
	now           func() time.Time
}

func NewMemStore() Store {
	return &memStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		now:           time.Now,
	}
}

func (s *memStore) FindOrCreateActive(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if c.SessionID == sessionID && c.Status == StatusActive {
			return c.ID, false, nil
		}
	}

	c := &Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    StatusActive,
		StartedAt: s.now(),
	}
	s.conversations[c.ID] = c
	return c.ID, true, nil
}

func (s *memStore) SaveMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}

	s.nextMsgID++
	msg.ID = s.nextMsgID
	msg.CreatedAt = s.now()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *memStore) UpdateContact(_ context.Context, conversationID string, u ContactUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if u.Name != nil {
		c.VisitorName = clone(u.Name)
	}
	if u.Email != nil {
		c.VisitorEmail = clone(u.Email)
	}
	if u.Phone != nil {
		c.VisitorPhone = clone(u.Phone)
	}
	return nil
}

func (s *memStore) ListConversations(_ context.Context, f ConversationFilter) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if f.Offset >= len(out) {
		return []Conversation{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *memStore) SetStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}

	if status == StatusActive {
		for _, other := range s.conversations {
			if other.ID != id && other.SessionID == c.SessionID && other.Status == StatusActive {
				return ErrConflict
			}
		}
		c.EndedAt = nil
	} else if c.Status == StatusActive {
		now := s.now()
		c.EndedAt = &now
	}
	c.Status = status
	return nil
}

func (s *memStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func clone(s *string) *string {
	v := *s
	return &v
}
