// Package store defines the durable-storage collaborator consumed by the
// write paths. The store is the single source of truth and the sole
// arbiter of write ordering; channel events are a notification
// side-channel layered on top of it.
package store

import (
	"context"
	"errors"

	"github.com/threadline-chat/messenger-platform/internal/model"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write contradicts existing state,
	// e.g. adding a member who already belongs to the conversation.
	ErrConflict = errors.New("store: conflict")
)

// Store is the storage collaborator interface. Implementations must be
// safe for concurrent use; returned entities are snapshots the caller may
// retain without further synchronization.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user model.User) error
	FindUser(ctx context.Context, id string) (model.User, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	FindUsers(ctx context.Context, excludingEmail string) ([]model.User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv model.Conversation) (model.Conversation, error)
	FindConversation(ctx context.Context, id string) (model.Conversation, error)
	FindDirectConversation(ctx context.Context, userIDA, userIDB string) (model.Conversation, error)
	ConversationsFor(ctx context.Context, userID string) ([]model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	AddMember(ctx context.Context, conversationID string, user model.User) (model.Conversation, error)
	RemoveMember(ctx context.Context, conversationID, userID string) (model.Conversation, error)

	// Messages
	AppendMessage(ctx context.Context, conversationID string, msg model.Message) (model.Message, error)
	MarkMessageSeen(ctx context.Context, messageID string, user model.User) (model.Message, error)
}
