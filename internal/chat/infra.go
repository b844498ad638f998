package chat

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the conversation and message tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return errors.Wrap(err, "apply chat schema")
}

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Store {
	return &repo{db: db}
}

const conversationColumns = `id, session_id, visitor_name, visitor_email, visitor_phone, status, started_at, ended_at`

func (r *repo) FindOrCreateActive(ctx context.Context, sessionID string) (string, bool, error) {
	var (
		id      string
		created bool
	)
	// the partial unique index turns a concurrent first turn into a no-op update
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO chat_conversations (id, session_id, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (session_id) WHERE status = 'active'
		DO UPDATE SET session_id = EXCLUDED.session_id
		RETURNING id, (xmax = 0) AS created
	`, uuid.NewString(), sessionID).Scan(&id, &created)
	if err != nil {
		return "", false, errors.Wrap(err, "find or create conversation")
	}
	return id, created, nil
}

func (r *repo) SaveMessage(ctx context.Context, msg *Message) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (conversation_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`,
		msg.ConversationID,
		string(msg.Role),
		msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return errors.Wrap(err, "save message")
}

func (r *repo) UpdateContact(ctx context.Context, conversationID string, u ContactUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_conversations
		SET visitor_name  = COALESCE($2, visitor_name),
		    visitor_email = COALESCE($3, visitor_email),
		    visitor_phone = COALESCE($4, visitor_phone)
		WHERE id = $1
	`, conversationID, u.Name, u.Email, u.Phone)
	if err != nil {
		return errors.Wrap(err, "update contact")
	}
	return expectOneRow(res)
}

func (r *repo) ListConversations(ctx context.Context, f ConversationFilter) ([]Conversation, error) {
	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM chat_conversations
		WHERE ($1 = '' OR status = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}

	return out, errors.Wrap(rows.Err(), "list conversations")
}

func (r *repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM chat_conversations
		WHERE id = $1
	`, id)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *repo) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&role,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		m.Role = Role(role)
		out = append(out, m)
	}

	return out, errors.Wrap(rows.Err(), "list messages")
}

func (r *repo) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_conversations
		SET ended_at = CASE
		        WHEN $2 = 'active' THEN NULL
		        WHEN status = 'active' THEN now()
		        ELSE ended_at
		    END,
		    status = $2
		WHERE id = $1
	`, id, string(status))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return errors.Wrap(err, "set status")
	}
	return expectOneRow(res)
}

func (r *repo) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_conversations WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var status string
	if err := row.Scan(
		&c.ID,
		&c.SessionID,
		&c.VisitorName,
		&c.VisitorEmail,
		&c.VisitorPhone,
		&status,
		&c.StartedAt,
		&c.EndedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan conversation")
	}
	c.Status = Status(status)
	return &c, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
