// Package model defines data structures for the messenger platform.
package model

import (
	"time"

	"github.com/samber/lo"
)

// Conversation represents a direct or group conversation thread.
// Members are unique and unordered; Messages are kept in creation order.
type Conversation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	IsGroup       bool      `json:"isGroup"`
	Members       []User    `json:"users"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// HasMember reports whether the user with the given ID belongs to the
// conversation.
func (c *Conversation) HasMember(userID string) bool {
	return lo.ContainsBy(c.Members, func(u User) bool {
		return u.ID == userID
	})
}

// LastMessage returns the most recent message, or nil if the conversation
// is empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// OtherMember returns the counterpart in a one-to-one conversation,
// identified by excluding the given email.
func (c *Conversation) OtherMember(email string) (User, bool) {
	return lo.Find(c.Members, func(u User) bool {
		return u.Email != email
	})
}

// CreateConversationRequest is the request to create a new conversation.
// One-to-one creation uses UserID; group creation uses IsGroup, Name and
// MemberIDs.
type CreateConversationRequest struct {
	UserID    string   `json:"userId,omitempty"`
	IsGroup   bool     `json:"isGroup,omitempty"`
	Name      string   `json:"name,omitempty"`
	MemberIDs []string `json:"members,omitempty"`
}

// AddMemberRequest is the request to add a user to a group conversation.
type AddMemberRequest struct {
	UserID string `json:"userId"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}
