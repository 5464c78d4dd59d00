package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/publish"
	"github.com/threadline-chat/messenger-platform/internal/store"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/metrics"
)

// SeenService resolves seen receipts for the most recent message of a
// conversation.
type SeenService struct {
	store     store.Store
	publisher *publish.Publisher
	logger    *logger.Logger
}

// NewSeenService creates a new seen-receipt service.
func NewSeenService(st store.Store, pub *publish.Publisher, log *logger.Logger) *SeenService {
	return &SeenService{store: st, publisher: pub, logger: log}
}

// SeenResult is the outcome of a MarkSeenIfNeeded call. When Marked is
// true, Message is the last message with the viewer newly added to its
// seen set; otherwise Conversation carries the unchanged state.
type SeenResult struct {
	Conversation model.Conversation
	Message      *model.Message
	Marked       bool
}

// MarkSeenIfNeeded records that the viewer has seen the conversation's
// most recent message, if they have not already. The operation is
// idempotent: callers invoke it on every view open and on every inbound
// message, and repeat calls neither rewrite nor republish. After a
// durable mark, conversation:update goes to the viewer's personal channel
// and message:update to the conversation channel, independently.
func (s *SeenService) MarkSeenIfNeeded(ctx context.Context, conversationID string, viewer model.User) (SeenResult, error) {
	// Seen sets embed the canonical user record, not the session claims.
	viewer, err := s.store.FindUserByEmail(ctx, viewer.Email)
	if err != nil {
		return SeenResult{}, err
	}

	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return SeenResult{}, err
	}
	if !conv.HasMember(viewer.ID) {
		return SeenResult{}, store.ErrNotFound
	}

	last := conv.LastMessage()
	if last == nil {
		metrics.SeenMarks.WithLabelValues(metrics.SeenOutcomeNoop).Inc()
		return SeenResult{Conversation: conv}, nil
	}

	if last.SeenBy(viewer.ID) {
		metrics.SeenMarks.WithLabelValues(metrics.SeenOutcomeNoop).Inc()
		return SeenResult{Conversation: conv, Message: last}, nil
	}

	updated, err := s.store.MarkMessageSeen(ctx, last.ID, viewer)
	if err != nil {
		return SeenResult{}, fmt.Errorf("mark message seen: %w", err)
	}

	s.publisher.SeenUpdated(ctx, conversationID, viewer.Email, updated)

	metrics.SeenMarks.WithLabelValues(metrics.SeenOutcomeMarked).Inc()
	s.logger.Debug("seen receipt recorded",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", updated.ID),
		zap.String("viewer_id", viewer.ID),
	)
	return SeenResult{Conversation: conv, Message: &updated, Marked: true}, nil
}
