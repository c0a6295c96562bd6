package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"minerva-backend/internal/middleware"
	"minerva-backend/internal/models"
	"minerva-backend/internal/services"
)

const maxAudioBytes = 15 << 20 // 15MB voice upload cap

// turnProcessor is the coordinator surface the handler calls.
type turnProcessor interface {
	ProcessTurn(ctx context.Context, userID uuid.UUID, req models.TurnRequest, voice *services.VoiceInput) (*models.TurnResponse, error)
}

type ChatHandler struct {
	chatService turnProcessor
}

func NewChatHandler(chatService turnProcessor) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ProcessTurn accepts one conversation turn. Text turns arrive as JSON;
// voice turns as multipart forms with an "audio" part whose transcription
// becomes the turn text.
func (h *ChatHandler) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.TurnRequest
	var voice *services.VoiceInput

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		var err error
		req, voice, err = parseVoiceTurn(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return
		}
	}

	resp, err := h.chatService.ProcessTurn(r.Context(), userID, req, voice)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseVoiceTurn(r *http.Request) (models.TurnRequest, *services.VoiceInput, error) {
	var req models.TurnRequest

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		return req, nil, errBadForm
	}

	req.Text = r.FormValue("text")
	if raw := r.FormValue("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, nil, errBadConversationID
		}
		req.ConversationID = &id
	}
	if raw := r.FormValue("recipient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, nil, errBadRecipientID
		}
		req.RecipientID = &id
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		// Text-only multipart turn
		return req, nil, nil
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		return req, nil, errBadForm
	}
	if len(data) > maxAudioBytes {
		return req, nil, errAudioTooLarge
	}

	mimeType := header.Header.Get("Content-Type")
	return req, &services.VoiceInput{Data: data, MIMEType: mimeType}, nil
}

var (
	errBadForm           = validationErr("Invalid multipart form")
	errBadConversationID = validationErr("Invalid conversation_id")
	errBadRecipientID    = validationErr("Invalid recipient_id")
	errAudioTooLarge     = validationErr("Audio upload exceeds the size limit")
)

type validationErr string

func (e validationErr) Error() string { return string(e) }
