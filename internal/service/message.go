package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/publish"
	"github.com/threadline-chat/messenger-platform/internal/store"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/metrics"
)

// tagPattern strips HTML tags from user-supplied message content.
var tagPattern = regexp.MustCompile(`</?[^>]+(>|$)`)

func sanitize(input string) string {
	return tagPattern.ReplaceAllString(input, "")
}

// MessageService handles the send-message write path.
type MessageService struct {
	store     store.Store
	publisher *publish.Publisher
	logger    *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(st store.Store, pub *publish.Publisher, log *logger.Logger) *MessageService {
	return &MessageService{store: st, publisher: pub, logger: log}
}

// Send appends a message to a conversation and fans the change out:
// messages:new on the conversation channel, conversation:user on each
// member's personal channel. The sender starts in the seen set. Image
// attachments are only carried for group conversations.
func (s *MessageService) Send(ctx context.Context, sender model.User, req *model.SendMessageRequest) (model.Message, error) {
	if req.ConversationID == "" {
		return model.Message{}, fmt.Errorf("%w: missing conversation id", ErrInvalid)
	}
	body := sanitize(req.Message)
	if body == "" && req.Image == "" {
		return model.Message{}, fmt.Errorf("%w: empty message", ErrInvalid)
	}

	conv, err := s.store.FindConversation(ctx, req.ConversationID)
	if err != nil {
		return model.Message{}, err
	}
	if !conv.HasMember(sender.ID) {
		return model.Message{}, store.ErrNotFound
	}

	image := ""
	if conv.IsGroup && req.Image != "" {
		image = sanitize(req.Image)
	}

	msg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Sender:         sender.Summary(),
		Body:           body,
		Image:          image,
		Seen:           []model.SenderSummary{sender.Summary()},
		CreatedAt:      time.Now(),
	}

	stored, err := s.store.AppendMessage(ctx, conv.ID, msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("append message: %w", err)
	}

	s.publisher.MessageSent(ctx, conv, stored, req.ClientID)

	kind := "text"
	if stored.Image != "" {
		kind = "image"
	}
	metrics.MessagesTotal.WithLabelValues(kind).Inc()
	s.logger.Debug("message sent",
		zap.String("conversation_id", conv.ID),
		zap.String("message_id", stored.ID),
	)
	return stored, nil
}

// List retrieves the messages of a conversation the current user belongs
// to, in creation order.
func (s *MessageService) List(ctx context.Context, current model.User, conversationID string) ([]model.Message, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(current.ID) {
		return nil, store.ErrNotFound
	}
	return conv.Messages, nil
}
