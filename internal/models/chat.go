package models

import "github.com/google/uuid"

// ChatMessage represents a single message in a conversation history.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// TurnRequest is the payload sent to the turn endpoint. Voice turns arrive as
// multipart forms; the handler fills Voice from the uploaded part and the
// transcription replaces Text entirely.
type TurnRequest struct {
	Text           string     `json:"text"`
	ConversationID *uuid.UUID `json:"conversation_id"`
	RecipientID    *uuid.UUID `json:"recipient_id"`
}

// TurnResponse is the reply for one processed turn.
type TurnResponse struct {
	Success        bool      `json:"success"`
	ConversationID uuid.UUID `json:"conversation_id"`
	UserMessageID  uuid.UUID `json:"user_message_id"`
	AgentMessageID uuid.UUID `json:"agent_message_id"`
	Reply          string    `json:"reply"`
	Transcription  string    `json:"transcription,omitempty"`
	AudioURL       string    `json:"audio_url,omitempty"`
}
