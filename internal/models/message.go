package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a chat room between two or more users. Direct conversations
// are created lazily on the first message and deduplicated per user pair.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	IsDirect  bool      `json:"is_direct"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted conversation message. FileURL carries an optional
// attachment reference (synthesized voice audio for agent replies).
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	FileURL        *string   `json:"file_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// SendMessageParams is the message-store write request. Exactly one of
// ConversationID/RecipientID must be set; with only RecipientID the store
// lazily creates (or reuses) the direct conversation for the pair.
type SendMessageParams struct {
	ConversationID *uuid.UUID
	RecipientID    *uuid.UUID
	Content        string
	FileURL        *string
}
