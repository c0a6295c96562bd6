package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"minerva-backend/internal/middleware"
	"minerva-backend/internal/models"
	"minerva-backend/internal/repository"
)

type conversationStore interface {
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	GetMessages(ctx context.Context, requestingUserID, conversationID uuid.UUID, limit int) ([]*models.Message, error)
}

type ConversationHandler struct {
	store conversationStore
}

func NewConversationHandler(store conversationStore) *ConversationHandler {
	return &ConversationHandler{store: store}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	conversations, err := h.store.ListConversations(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list conversations", r))
		return
	}
	if conversations == nil {
		conversations = []*models.Conversation{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

// GetMessages returns a conversation's messages oldest-first. Only
// participants can read.
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid conversation ID", r))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid limit", r))
			return
		}
	}

	userID := middleware.GetUserID(r.Context())
	messages, err := h.store.GetMessages(r.Context(), userID, conversationID, limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotParticipant) {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You are not a participant of this conversation", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load messages", r))
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
