package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadline-chat/messenger-platform/internal/middleware"
	"github.com/threadline-chat/messenger-platform/internal/service"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// SeenHandler serves the mark-seen trigger.
type SeenHandler struct {
	seen   *service.SeenService
	logger *logger.Logger
}

// NewSeenHandler creates a seen handler.
func NewSeenHandler(seen *service.SeenService, log *logger.Logger) *SeenHandler {
	return &SeenHandler{
		seen:   seen,
		logger: log,
	}
}

// MarkSeen handles POST /api/v1/conversations/{conversationID}/seen.
// The operation is idempotent: when the caller already saw the latest
// message the unchanged conversation comes back and nothing is
// republished.
func (h *SeenHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.seen.MarkSeenIfNeeded(r.Context(), conversationID, current)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if result.Marked {
		writeJSON(w, http.StatusOK, result.Message)
		return
	}
	writeJSON(w, http.StatusOK, result.Conversation)
}
