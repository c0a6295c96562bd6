package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"minerva-backend/internal/models"
	"minerva-backend/internal/repository"
)

// historyLimit caps how much prior conversation is replayed to the model.
const historyLimit = 50

// voiceMIMETypes is the accepted set for voice-turn uploads.
var voiceMIMETypes = map[string]bool{
	"audio/mpeg": true,
	"audio/wav":  true,
	"audio/mp4":  true,
	"audio/ogg":  true,
	"audio/flac": true,
}

// MessageStore is the persistence surface the coordinator writes turns to.
type MessageStore interface {
	SendMessage(ctx context.Context, senderID uuid.UUID, params models.SendMessageParams) (*models.Message, error)
	GetMessages(ctx context.Context, requestingUserID, conversationID uuid.UUID, limit int) ([]*models.Message, error)
}

// AgentRunner produces the assistant reply for a conversation history. It
// never fails; unrecoverable model errors surface as a fallback answer.
type AgentRunner interface {
	Run(ctx context.Context, history []models.ChatMessage, userID uuid.UUID) string
}

// Transcriber converts voice audio to text.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Synthesizer renders reply text as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Configured() bool
}

// AudioStore persists synthesized reply audio and returns its public URL.
type AudioStore interface {
	Upload(data []byte, suggestedName string) (string, error)
}

// VoiceInput is the uploaded audio of a voice turn.
type VoiceInput struct {
	Data     []byte
	MIMEType string
}

// ChatService is the turn coordinator: it validates the turn target, runs
// speech-to-text at the inbound edge, assembles history, runs the agent loop,
// persists both sides of the exchange, and runs text-to-speech at the
// outbound edge.
type ChatService struct {
	store       MessageStore
	runner      AgentRunner
	transcriber Transcriber
	synthesizer Synthesizer
	audioStore  AudioStore
	agentUserID uuid.UUID
}

func NewChatService(store MessageStore, runner AgentRunner, transcriber Transcriber, synthesizer Synthesizer, audioStore AudioStore, agentUserID uuid.UUID) *ChatService {
	return &ChatService{
		store:       store,
		runner:      runner,
		transcriber: transcriber,
		synthesizer: synthesizer,
		audioStore:  audioStore,
		agentUserID: agentUserID,
	}
}

// ProcessTurn runs one full user turn. Validation and transcription happen
// before any write, so a rejected turn leaves the message store untouched.
// Voice synthesis failures degrade the turn to text-only rather than failing
// it.
func (s *ChatService) ProcessTurn(ctx context.Context, userID uuid.UUID, req models.TurnRequest, voice *VoiceInput) (*models.TurnResponse, error) {
	if err := validateTarget(req, s.agentUserID); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	transcription := ""

	if voice != nil {
		if !voiceMIMETypes[voice.MIMEType] {
			return nil, &ValidationError{Fields: map[string]string{
				"audio": fmt.Sprintf("unsupported audio type %q", voice.MIMEType),
			}}
		}
		if s.transcriber == nil {
			return nil, &AIError{Message: "voice turns are not available"}
		}

		t, err := s.transcriber.TranscribeAudio(ctx, voice.Data, voice.MIMEType)
		if err != nil {
			log.Printf("WARNING: transcription failed: %v", err)
			return nil, &AIError{Message: "failed to transcribe the audio"}
		}
		// The transcription is the turn text; any accompanying text field is
		// ignored for voice turns.
		transcription = strings.TrimSpace(t)
		text = transcription
	}

	if text == "" {
		return nil, &ValidationError{Fields: map[string]string{"text": "text is required"}}
	}

	history, err := s.assembleHistory(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}
	history = append(history, models.ChatMessage{Role: "user", Content: text})

	reply := s.runner.Run(ctx, history, userID)

	userMsg, err := s.store.SendMessage(ctx, userID, models.SendMessageParams{
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		Content:        text,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotParticipant) {
			return nil, &ForbiddenError{Message: "You are not a participant of this conversation"}
		}
		log.Printf("WARNING: failed to persist user message: %v", err)
		return nil, fmt.Errorf("failed to process the request")
	}

	audioURL := s.synthesizeReply(ctx, voice != nil, reply)

	agentMsg, err := s.store.SendMessage(ctx, s.agentUserID, models.SendMessageParams{
		ConversationID: &userMsg.ConversationID,
		Content:        reply,
		FileURL:        audioURL,
	})
	if err != nil {
		log.Printf("WARNING: failed to persist agent reply: %v", err)
		return nil, fmt.Errorf("failed to process the request")
	}

	resp := &models.TurnResponse{
		Success:        true,
		ConversationID: userMsg.ConversationID,
		UserMessageID:  userMsg.ID,
		AgentMessageID: agentMsg.ID,
		Reply:          reply,
		Transcription:  transcription,
	}
	if audioURL != nil {
		resp.AudioURL = *audioURL
	}
	return resp, nil
}

// validateTarget enforces that a turn addresses exactly one target and that
// direct turns only address the assistant.
func validateTarget(req models.TurnRequest, agentUserID uuid.UUID) error {
	if (req.ConversationID == nil) == (req.RecipientID == nil) {
		return &ValidationError{Fields: map[string]string{
			"target": "exactly one of conversation_id or recipient_id is required",
		}}
	}
	if req.RecipientID != nil && *req.RecipientID != agentUserID {
		return &ValidationError{Fields: map[string]string{
			"recipient_id": "messages can only be sent to the assistant",
		}}
	}
	return nil
}

// assembleHistory replays the stored conversation as model roles: assistant
// for messages the agent sent, user for everything else.
func (s *ChatService) assembleHistory(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]models.ChatMessage, error) {
	if conversationID == nil {
		return nil, nil
	}

	messages, err := s.store.GetMessages(ctx, userID, *conversationID, historyLimit)
	if err != nil {
		if errors.Is(err, repository.ErrNotParticipant) {
			return nil, &ForbiddenError{Message: "You are not a participant of this conversation"}
		}
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	history := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.SenderID == s.agentUserID {
			role = "assistant"
		}
		history = append(history, models.ChatMessage{Role: role, Content: m.Content})
	}
	return history, nil
}

// synthesizeReply runs the outbound voice edge. Only voice turns get audio
// replies, and every failure here is soft.
func (s *ChatService) synthesizeReply(ctx context.Context, voiceTurn bool, reply string) *string {
	if !voiceTurn || s.synthesizer == nil || !s.synthesizer.Configured() || s.audioStore == nil {
		return nil
	}

	audio, err := s.synthesizer.Synthesize(ctx, reply)
	if err != nil {
		log.Printf("WARNING: voice synthesis failed, returning text-only reply: %v", err)
		return nil
	}

	url, err := s.audioStore.Upload(audio, "reply.mp3")
	if err != nil {
		log.Printf("WARNING: failed to store synthesized audio: %v", err)
		return nil
	}
	return &url
}
