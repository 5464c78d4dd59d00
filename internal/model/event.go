package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Event names carried on user and conversation channels. These are wire
// contracts shared with every connected client and must not change.
const (
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventConversationRemove = "conversation:remove"
	EventConversationUser   = "conversation:user"
	EventMessagesNew        = "messages:new"
	EventMessageUpdate      = "message:update"
	// EventMessagesUpdate is an accepted alias of EventMessageUpdate kept
	// for older clients that bind the plural form.
	EventMessagesUpdate = "messages:update"
)

// Presence channel lifecycle events.
const (
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventMemberAdded           = "member_added"
	EventMemberRemoved         = "member_removed"
)

// ErrMalformedEvent is returned when an inbound payload is missing
// required fields. Malformed payloads are rejected at the boundary rather
// than at downstream access.
var ErrMalformedEvent = errors.New("malformed event payload")

// NewMessageEvent is the messages:new payload on a conversation channel.
// ClientID is only set when the sender supplied a correlation id.
type NewMessageEvent struct {
	ID        string        `json:"id"`
	Body      string        `json:"body"`
	Sender    SenderSummary `json:"sender"`
	Image     string        `json:"image,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	ClientID  string        `json:"clientId,omitempty"`
}

// Message converts the wire payload back into a domain message scoped to
// the given conversation. The sender is implicitly in the seen set.
func (e NewMessageEvent) Message(conversationID string) Message {
	return Message{
		ID:             e.ID,
		ConversationID: conversationID,
		Sender:         e.Sender,
		Body:           e.Body,
		Image:          e.Image,
		Seen:           []SenderSummary{e.Sender},
		CreatedAt:      e.CreatedAt,
	}
}

// LastMessageSummary is the last-message shape inside conversation:user
// payloads.
type LastMessageSummary struct {
	ID        string        `json:"id"`
	Body      string        `json:"body"`
	Sender    SenderSummary `json:"sender"`
	Image     string        `json:"image,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ConversationUserEvent is the conversation:user payload delivered to each
// member's personal channel after a message is sent.
type ConversationUserEvent struct {
	ID          string             `json:"id"`
	LastMessage LastMessageSummary `json:"lastMessage"`
}

// ConversationUpdateEvent is the conversation:update payload: the
// conversation id plus the messages that changed (typically the message
// whose seen set grew, or none for a pure membership refresh).
type ConversationUpdateEvent struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages,omitempty"`
	Members  []User    `json:"users,omitempty"`
}

// PresenceMember is the singleton payload of member_added/member_removed.
type PresenceMember struct {
	ID string `json:"id"`
}

// PresenceSnapshot is the subscription_succeeded payload: the full member
// list at subscribe time.
type PresenceSnapshot struct {
	Members []PresenceMember `json:"members"`
}

// DecodeNewMessage parses and validates a messages:new payload.
func DecodeNewMessage(data []byte) (NewMessageEvent, error) {
	var e NewMessageEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return NewMessageEvent{}, err
	}
	if e.ID == "" || e.Sender.ID == "" {
		return NewMessageEvent{}, ErrMalformedEvent
	}
	return e, nil
}

// DecodeMessage parses and validates a message:update payload.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.ID == "" {
		return Message{}, ErrMalformedEvent
	}
	return m, nil
}

// DecodeConversation parses and validates a conversation:new or
// conversation:remove payload.
func DecodeConversation(data []byte) (Conversation, error) {
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return Conversation{}, err
	}
	if c.ID == "" {
		return Conversation{}, ErrMalformedEvent
	}
	return c, nil
}

// DecodeConversationUpdate parses and validates a conversation:update
// payload.
func DecodeConversationUpdate(data []byte) (ConversationUpdateEvent, error) {
	var e ConversationUpdateEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ConversationUpdateEvent{}, err
	}
	if e.ID == "" {
		return ConversationUpdateEvent{}, ErrMalformedEvent
	}
	return e, nil
}

// DecodeConversationUser parses and validates a conversation:user payload.
func DecodeConversationUser(data []byte) (ConversationUserEvent, error) {
	var e ConversationUserEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ConversationUserEvent{}, err
	}
	if e.ID == "" {
		return ConversationUserEvent{}, ErrMalformedEvent
	}
	return e, nil
}

// DecodePresenceMember parses and validates a member_added or
// member_removed payload.
func DecodePresenceMember(data []byte) (PresenceMember, error) {
	var m PresenceMember
	if err := json.Unmarshal(data, &m); err != nil {
		return PresenceMember{}, err
	}
	if m.ID == "" {
		return PresenceMember{}, ErrMalformedEvent
	}
	return m, nil
}

// DecodePresenceSnapshot parses a subscription_succeeded payload.
func DecodePresenceSnapshot(data []byte) (PresenceSnapshot, error) {
	var s PresenceSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return PresenceSnapshot{}, err
	}
	return s, nil
}
