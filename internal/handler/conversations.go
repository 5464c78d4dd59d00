// Package handler implements the HTTP API surface.
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

// ConversationHandler serves the conversation resource.
type ConversationHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(conversations *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		logger:        log,
	}
}

// Create handles POST /api/v1/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	current, ok := sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IsGroup {
		if err := middleware.ValidateConversationName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.conversations.Create(r.Context(), current, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	current, ok := sessionUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conversations, err := h.conversations.List(r.Context(), current)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: conversations,
		Total:         len(conversations),
	})
}

// Get handles GET /api/v1/conversations/{conversationID}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	conv, err := h.conversations.Get(r.Context(), current, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{conversationID}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	conv, err := h.conversations.Delete(r.Context(), current, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// AddMember handles POST /api/v1/conversations/{conversationID}/members.
func (h *ConversationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
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

	var req model.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.conversations.AddMember(r.Context(), current, conversationID, req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RemoveMember handles DELETE /api/v1/conversations/{conversationID}/members/{userID}.
func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
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
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user ID")
		return
	}

	conv, err := h.conversations.RemoveMember(r.Context(), current, conversationID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
