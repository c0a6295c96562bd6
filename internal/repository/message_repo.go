package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"minerva-backend/internal/models"
)

// ErrNotParticipant is returned when a user reads or writes a conversation
// they are not a member of.
var ErrNotParticipant = errors.New("user is not a participant of the conversation")

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// SendMessage persists one message. When params carries only a RecipientID,
// the direct conversation for the sender/recipient pair is created lazily and
// deduplicated on the normalized pair key; the returned message carries the
// authoritative conversation id either way. The whole write is one
// transaction so a failed insert never leaves a half-created conversation.
func (r *MessageRepo) SendMessage(ctx context.Context, senderID uuid.UUID, params models.SendMessageParams) (*models.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var conversationID uuid.UUID
	switch {
	case params.ConversationID != nil:
		conversationID = *params.ConversationID
		var member bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`,
			conversationID, senderID,
		).Scan(&member)
		if err != nil {
			return nil, fmt.Errorf("failed to check membership: %w", err)
		}
		if !member {
			return nil, ErrNotParticipant
		}

	case params.RecipientID != nil:
		conversationID, err = r.findOrCreateDirect(ctx, tx, senderID, *params.RecipientID)
		if err != nil {
			return nil, err
		}

	default:
		return nil, errors.New("either conversation_id or recipient_id is required")
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        params.Content,
		FileURL:        params.FileURL,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, file_url)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.FileURL,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

// findOrCreateDirect resolves the direct conversation for a user pair,
// creating it (with both participants) on first contact.
func (r *MessageRepo) findOrCreateDirect(ctx context.Context, tx pgx.Tx, a, b uuid.UUID) (uuid.UUID, error) {
	key := directKey(a, b)

	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE direct_key = $1`, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("failed to look up direct conversation: %w", err)
	}

	id = uuid.New()
	// ON CONFLICT covers the race where two first messages cross.
	err = tx.QueryRow(ctx,
		`INSERT INTO conversations (id, is_direct, direct_key) VALUES ($1, TRUE, $2)
		 ON CONFLICT (direct_key) DO UPDATE SET direct_key = EXCLUDED.direct_key
		 RETURNING id`,
		id, key,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create direct conversation: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id)
		 VALUES ($1, $2), ($1, $3) ON CONFLICT DO NOTHING`,
		id, a, b,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add participants: %w", err)
	}

	return id, nil
}

// GetMessages returns a conversation's messages ordered by creation time
// ascending, after verifying the requesting user is a participant. A positive
// limit keeps the most recent messages, still returned oldest first.
func (r *MessageRepo) GetMessages(ctx context.Context, requestingUserID, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	var member bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, requestingUserID,
	).Scan(&member)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return nil, ErrNotParticipant
	}

	query := `SELECT id, conversation_id, sender_id, content, file_url, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	args := []interface{}{conversationID}
	if limit > 0 {
		// Keep the most recent rows, then restore chronological order.
		query = `SELECT id, conversation_id, sender_id, content, file_url, created_at
			FROM (
				SELECT id, conversation_id, sender_id, content, file_url, created_at
				FROM messages WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC LIMIT $2
			) recent ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.FileURL, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListConversations returns the conversations a user participates in, newest
// activity first.
func (r *MessageRepo) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.is_direct, c.title, c.created_at
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = $1
		 ORDER BY (SELECT MAX(created_at) FROM messages m WHERE m.conversation_id = c.id) DESC NULLS LAST`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.IsDirect, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// directKey normalizes a user pair into a stable dedup key.
func directKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}
