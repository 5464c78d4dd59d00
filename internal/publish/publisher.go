// Package publish implements the server-side event publisher: after a
// write commits to the store, it fans the change out over the relevant
// broadcast channels. Publishing is best-effort and at-least-once; a
// failed publish to one recipient never affects the others and never
// fails the write, which already committed.
package publish

import (
	"context"

	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/metrics"
)

// Publisher fans write-path events out over the transport.
type Publisher struct {
	bus    transport.Bus
	logger *logger.Logger
}

// New creates a publisher over the given bus.
func New(bus transport.Bus, log *logger.Logger) *Publisher {
	return &Publisher{bus: bus, logger: log}
}

// ConversationCreated emits conversation:new on every member's personal
// channel.
func (p *Publisher) ConversationCreated(ctx context.Context, conv model.Conversation) {
	for _, member := range conv.Members {
		p.emit(ctx, transport.UserChannel(member.Email), model.EventConversationNew, conv)
	}
}

// MessageSent emits messages:new on the conversation channel, then
// conversation:user with the last-message summary on every member's
// personal channel. The client-supplied correlation id rides along on
// messages:new only.
func (p *Publisher) MessageSent(ctx context.Context, conv model.Conversation, msg model.Message, clientID string) {
	p.emit(ctx, transport.ConversationChannel(conv.ID), model.EventMessagesNew, model.NewMessageEvent{
		ID:        msg.ID,
		Body:      msg.Body,
		Sender:    msg.Sender,
		Image:     msg.Image,
		CreatedAt: msg.CreatedAt,
		ClientID:  clientID,
	})

	summary := model.LastMessageSummary{
		ID:        msg.ID,
		Body:      msg.Body,
		Sender:    msg.Sender,
		Image:     msg.Image,
		CreatedAt: msg.CreatedAt,
	}
	for _, member := range conv.Members {
		p.emit(ctx, transport.UserChannel(member.Email), model.EventConversationUser, model.ConversationUserEvent{
			ID:          conv.ID,
			LastMessage: summary,
		})
	}
}

// SeenUpdated emits conversation:update on the viewer's personal channel
// and message:update on the conversation channel. The two publishes are
// independent; one failing does not block the other.
func (p *Publisher) SeenUpdated(ctx context.Context, conversationID, viewerEmail string, msg model.Message) {
	p.emit(ctx, transport.UserChannel(viewerEmail), model.EventConversationUpdate, model.ConversationUpdateEvent{
		ID:       conversationID,
		Messages: []model.Message{msg},
	})
	p.emit(ctx, transport.ConversationChannel(conversationID), model.EventMessageUpdate, msg)
}

// ConversationRemoved emits conversation:remove with the full conversation
// on every member's personal channel. Members are taken from the
// conversation as it stood before deletion.
func (p *Publisher) ConversationRemoved(ctx context.Context, conv model.Conversation) {
	for _, member := range conv.Members {
		p.emit(ctx, transport.UserChannel(member.Email), model.EventConversationRemove, conv)
	}
}

// MembershipChanged emits conversation:update carrying the refreshed
// member list to every current member, plus the given extra recipients
// (e.g. a just-removed member whose sidebar must drop the conversation).
func (p *Publisher) MembershipChanged(ctx context.Context, conv model.Conversation, extra ...model.User) {
	update := model.ConversationUpdateEvent{
		ID:      conv.ID,
		Members: conv.Members,
	}
	for _, member := range conv.Members {
		p.emit(ctx, transport.UserChannel(member.Email), model.EventConversationUpdate, update)
	}
	for _, member := range extra {
		p.emit(ctx, transport.UserChannel(member.Email), model.EventConversationRemove, conv)
	}
}

// emit attempts a single publish. Failure is logged and counted, never
// propagated: the application layer does not retry.
func (p *Publisher) emit(ctx context.Context, channel, event string, payload any) {
	err := p.bus.Publish(ctx, channel, event, payload)
	metrics.RecordPublish(event, err)
	if err != nil {
		p.logger.Warn("event publish failed",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
