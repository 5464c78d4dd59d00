package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline-chat/messenger-platform/internal/middleware"
	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/service"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// MessageHandler serves the message resource.
type MessageHandler struct {
	messages *service.MessageService
	logger   *logger.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(messages *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		logger:   log,
	}
}

// Send handles POST /api/v1/messages.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	current, ok := sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Image == "" {
		if err := middleware.ValidateMessageBody(req.Message); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	msg, err := h.messages.Send(r.Context(), current, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /api/v1/conversations/{conversationID}/messages.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	current, ok := sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conversationID := chi.URLParam(r, "conversationID")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.messages.List(r.Context(), current, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}
