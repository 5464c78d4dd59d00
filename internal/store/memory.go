package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/threadline-chat/messenger-platform/internal/model"
)

// MemoryStore is an in-memory Store. It stands in for a database in
// development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	usersByEmail  map[string]string
	conversations map[string]*model.Conversation
	// messageIndex maps a message id to its owning conversation.
	messageIndex map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		usersByEmail:  make(map[string]string),
		conversations: make(map[string]*model.Conversation),
		messageIndex:  make(map[string]string),
	}
}

// CreateUser registers a new user. Email must be unique.
func (s *MemoryStore) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return ErrConflict
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return ErrConflict
	}
	u := user
	s.users[user.ID] = &u
	s.usersByEmail[user.Email] = user.ID
	return nil
}

// FindUser retrieves a user by ID.
func (s *MemoryStore) FindUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return model.User{}, ErrNotFound
	}
	return *u, nil
}

// FindUserByEmail retrieves a user by email handle.
func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.usersByEmail[email]
	if !exists {
		return model.User{}, ErrNotFound
	}
	return *s.users[id], nil
}

// FindUsers lists all users except the one with the given email, newest
// first.
func (s *MemoryStore) FindUsers(_ context.Context, excludingEmail string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Email != excludingEmail {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// CreateConversation stores a new conversation.
func (s *MemoryStore) CreateConversation(_ context.Context, conv model.Conversation) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return model.Conversation{}, ErrConflict
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = conv.CreatedAt
	}
	c := cloneConversation(conv)
	s.conversations[conv.ID] = &c
	return cloneConversation(c), nil
}

// FindConversation retrieves a conversation with its messages and members.
func (s *MemoryStore) FindConversation(_ context.Context, id string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return model.Conversation{}, ErrNotFound
	}
	return cloneConversation(*conv), nil
}

// FindDirectConversation returns the existing one-to-one conversation
// between two users, if any.
func (s *MemoryStore) FindDirectConversation(_ context.Context, userIDA, userIDB string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conv := range s.conversations {
		if conv.IsGroup || len(conv.Members) != 2 {
			continue
		}
		if conv.HasMember(userIDA) && conv.HasMember(userIDB) {
			return cloneConversation(*conv), nil
		}
	}
	return model.Conversation{}, ErrNotFound
}

// ConversationsFor lists the conversations a user belongs to, most recent
// activity first.
func (s *MemoryStore) ConversationsFor(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.HasMember(userID) {
			convs = append(convs, cloneConversation(*conv))
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})
	return convs, nil
}

// DeleteConversation removes a conversation and its message index entries.
func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return ErrNotFound
	}
	for _, msg := range conv.Messages {
		delete(s.messageIndex, msg.ID)
	}
	delete(s.conversations, id)
	return nil
}

// AddMember adds a user to a conversation. Duplicate members conflict.
func (s *MemoryStore) AddMember(_ context.Context, conversationID string, user model.User) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists {
		return model.Conversation{}, ErrNotFound
	}
	if conv.HasMember(user.ID) {
		return model.Conversation{}, ErrConflict
	}
	conv.Members = append(conv.Members, user)
	return cloneConversation(*conv), nil
}

// RemoveMember removes a user from a conversation.
func (s *MemoryStore) RemoveMember(_ context.Context, conversationID, userID string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists {
		return model.Conversation{}, ErrNotFound
	}
	if !conv.HasMember(userID) {
		return model.Conversation{}, ErrNotFound
	}
	conv.Members = lo.Reject(conv.Members, func(u model.User, _ int) bool {
		return u.ID == userID
	})
	return cloneConversation(*conv), nil
}

// AppendMessage appends a message to a conversation and bumps its
// lastMessageAt recency key.
func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists {
		return model.Message{}, ErrNotFound
	}
	if _, exists := s.messageIndex[msg.ID]; exists {
		return model.Message{}, ErrConflict
	}
	msg.ConversationID = conversationID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	conv.Messages = append(conv.Messages, cloneMessage(msg))
	conv.LastMessageAt = msg.CreatedAt
	s.messageIndex[msg.ID] = conversationID
	return cloneMessage(msg), nil
}

// MarkMessageSeen adds the user to a message's seen set. The seen set only
// ever grows; marking twice returns the message unchanged.
func (s *MemoryStore) MarkMessageSeen(_ context.Context, messageID string, user model.User) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversationID, exists := s.messageIndex[messageID]
	if !exists {
		return model.Message{}, ErrNotFound
	}
	conv := s.conversations[conversationID]
	for i := range conv.Messages {
		if conv.Messages[i].ID != messageID {
			continue
		}
		if !conv.Messages[i].SeenBy(user.ID) {
			conv.Messages[i].Seen = append(conv.Messages[i].Seen, user.Summary())
		}
		return cloneMessage(conv.Messages[i]), nil
	}
	return model.Message{}, ErrNotFound
}

func cloneConversation(conv model.Conversation) model.Conversation {
	c := conv
	c.Members = append([]model.User(nil), conv.Members...)
	c.Messages = make([]model.Message, len(conv.Messages))
	for i, msg := range conv.Messages {
		c.Messages[i] = cloneMessage(msg)
	}
	return c
}

func cloneMessage(msg model.Message) model.Message {
	m := msg
	m.Seen = append([]model.SenderSummary(nil), msg.Seen...)
	return m
}
