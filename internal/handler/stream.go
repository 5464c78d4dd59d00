package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/middleware"
	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/service"
	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/metrics"
)

const streamHeartbeat = 15 * time.Second

// StreamHandler bridges conversation-channel events onto an SSE
// response for clients that cannot hold a socket.
type StreamHandler struct {
	bus           transport.Bus
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(bus transport.Bus, conversations *service.ConversationService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		bus:           bus,
		conversations: conversations,
		logger:        log,
	}
}

type streamEvent struct {
	event string
	data  []byte
}

// Stream handles GET /api/v1/conversations/{conversationID}/stream.
// Membership is checked before subscribing; events are relayed in
// per-channel publish order until the client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
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
	if _, err := h.conversations.Get(r.Context(), current, conversationID); err != nil {
		writeServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	conn, err := h.bus.Connect(current.Email)
	if err != nil {
		h.logger.Error("stream connect failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	defer conn.Close()

	sub, err := conn.Subscribe(transport.ConversationChannel(conversationID))
	if err != nil {
		h.logger.Error("stream subscribe failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	defer sub.Close()

	// Transport handlers only enqueue; the response goroutine owns all
	// writes. A full queue drops the oldest pending event rather than
	// blocking delivery to other subscribers.
	events := make(chan streamEvent, 64)
	relay := func(event string) transport.HandlerFunc {
		return func(data []byte) {
			select {
			case events <- streamEvent{event: event, data: data}:
			default:
				h.logger.Warn("stream queue full, dropping event",
					zap.String("conversation_id", conversationID),
					zap.String("event", event),
				)
			}
		}
	}
	for _, event := range []string{model.EventMessagesNew, model.EventMessageUpdate, model.EventMessagesUpdate} {
		sub.Bind(event, relay(event))
	}

	// The server's WriteTimeout would sever the long-lived stream;
	// clear the deadline for this response only.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("stream write deadline not adjustable", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-events:
			if !json.Valid(ev.data) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.event, ev.data)
			flusher.Flush()
		}
	}
}
