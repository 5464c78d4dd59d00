package model

import (
	"time"

	"github.com/samber/lo"
)

// Message represents a single conversation message. A message may carry
// body text, an image reference, or both; previews prioritize the image.
// The seen set grows monotonically and never loses members.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`

	// Content
	Sender SenderSummary `json:"sender"`
	Body   string        `json:"body"`
	Image  string        `json:"image,omitempty"`

	// Seen receipts
	Seen []SenderSummary `json:"seen"`

	CreatedAt time.Time `json:"createdAt"`
}

// SeenBy reports whether the user with the given ID has seen the message.
func (m *Message) SeenBy(userID string) bool {
	return lo.ContainsBy(m.Seen, func(s SenderSummary) bool {
		return s.ID == userID
	})
}

// Preview returns the sidebar preview text for the message.
func (m *Message) Preview() string {
	if m.Image != "" {
		return "Sent an image"
	}
	return m.Body
}

// SendMessageRequest is the request to send a new message. ClientID is a
// client-generated correlation id echoed back on the messages:new event so
// the sender can reconcile an optimistically rendered message.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Image          string `json:"image,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
