// Package service provides the write paths of the messenger platform.
// Each operation commits to the store first and only then notifies the
// publisher; events are a side-channel, never the source of truth.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/publish"
	"github.com/threadline-chat/messenger-platform/internal/store"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/metrics"
)

// ErrInvalid marks requests rejected on validation before any write.
var ErrInvalid = errors.New("invalid request")

// ConversationService handles conversation lifecycle operations.
type ConversationService struct {
	store     store.Store
	publisher *publish.Publisher
	logger    *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, pub *publish.Publisher, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, publisher: pub, logger: log}
}

// Create creates a conversation. One-to-one creation is idempotent: if a
// two-member conversation between the pair already exists it is returned
// without publishing. Group creation requires a name and at least one
// member beyond the creator.
func (s *ConversationService) Create(ctx context.Context, current model.User, req *model.CreateConversationRequest) (model.Conversation, error) {
	if req.IsGroup {
		return s.createGroup(ctx, current, req)
	}
	return s.createDirect(ctx, current, req)
}

func (s *ConversationService) createGroup(ctx context.Context, current model.User, req *model.CreateConversationRequest) (model.Conversation, error) {
	if req.Name == "" || len(req.MemberIDs) < 1 {
		return model.Conversation{}, fmt.Errorf("%w: group requires a name and at least one member", ErrInvalid)
	}

	members := []model.User{current}
	for _, id := range req.MemberIDs {
		if id == current.ID {
			continue
		}
		user, err := s.store.FindUser(ctx, id)
		if err != nil {
			return model.Conversation{}, fmt.Errorf("resolve member %s: %w", id, err)
		}
		members = append(members, user)
	}

	now := time.Now()
	conv, err := s.store.CreateConversation(ctx, model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      req.Name,
		IsGroup:   true,
		Members:   members,
		CreatedAt: now,
	})
	if err != nil {
		return model.Conversation{}, fmt.Errorf("create group conversation: %w", err)
	}

	s.publisher.ConversationCreated(ctx, conv)
	metrics.ConversationsTotal.WithLabelValues("group").Inc()
	s.logger.Info("group conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Int("members", len(conv.Members)),
	)
	return conv, nil
}

func (s *ConversationService) createDirect(ctx context.Context, current model.User, req *model.CreateConversationRequest) (model.Conversation, error) {
	if req.UserID == "" || req.UserID == current.ID {
		return model.Conversation{}, fmt.Errorf("%w: missing counterpart user", ErrInvalid)
	}

	other, err := s.store.FindUser(ctx, req.UserID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("resolve user %s: %w", req.UserID, err)
	}

	existing, err := s.store.FindDirectConversation(ctx, current.ID, other.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, fmt.Errorf("lookup direct conversation: %w", err)
	}

	now := time.Now()
	conv, err := s.store.CreateConversation(ctx, model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Members:   []model.User{current, other},
		CreatedAt: now,
	})
	if err != nil {
		return model.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	s.publisher.ConversationCreated(ctx, conv)
	metrics.ConversationsTotal.WithLabelValues("direct").Inc()
	return conv, nil
}

// Get retrieves a conversation the current user belongs to.
func (s *ConversationService) Get(ctx context.Context, current model.User, conversationID string) (model.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.HasMember(current.ID) {
		return model.Conversation{}, store.ErrNotFound
	}
	return conv, nil
}

// List retrieves the current user's conversations, most recent first.
func (s *ConversationService) List(ctx context.Context, current model.User) ([]model.Conversation, error) {
	return s.store.ConversationsFor(ctx, current.ID)
}

// Delete removes a conversation and notifies every member that it is
// gone. Only members may delete.
func (s *ConversationService) Delete(ctx context.Context, current model.User, conversationID string) (model.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.HasMember(current.ID) {
		return model.Conversation{}, store.ErrNotFound
	}

	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return model.Conversation{}, fmt.Errorf("delete conversation: %w", err)
	}

	// Fan out with the membership as it stood before deletion.
	s.publisher.ConversationRemoved(ctx, conv)
	return conv, nil
}

// AddMember adds a user to a group conversation and broadcasts the
// refreshed membership.
func (s *ConversationService) AddMember(ctx context.Context, current model.User, conversationID, userID string) (model.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.IsGroup {
		return model.Conversation{}, fmt.Errorf("%w: not a group conversation", ErrInvalid)
	}
	if !conv.HasMember(current.ID) {
		return model.Conversation{}, store.ErrNotFound
	}

	user, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("resolve user %s: %w", userID, err)
	}

	updated, err := s.store.AddMember(ctx, conversationID, user)
	if err != nil {
		return model.Conversation{}, err
	}

	s.publisher.MembershipChanged(ctx, updated)
	return updated, nil
}

// RemoveMember removes a user from a group conversation. Remaining
// members receive the refreshed membership; the removed member receives a
// removal so their sidebar drops the conversation.
func (s *ConversationService) RemoveMember(ctx context.Context, current model.User, conversationID, userID string) (model.Conversation, error) {
	conv, err := s.store.FindConversation(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !conv.IsGroup {
		return model.Conversation{}, fmt.Errorf("%w: not a group conversation", ErrInvalid)
	}
	if !conv.HasMember(current.ID) {
		return model.Conversation{}, store.ErrNotFound
	}

	removed, err := s.store.FindUser(ctx, userID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("resolve user %s: %w", userID, err)
	}

	updated, err := s.store.RemoveMember(ctx, conversationID, userID)
	if err != nil {
		return model.Conversation{}, err
	}

	s.publisher.MembershipChanged(ctx, updated, removed)
	return updated, nil
}
