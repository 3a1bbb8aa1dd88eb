// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relaymesh/whatsapp-inbox/internal/middleware"
	"github.com/relaymesh/whatsapp-inbox/internal/store"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
)

// ConversationHandler handles the conversation read API.
type ConversationHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		logger: log,
	}
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListConversations(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// Get handles GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
