// Package transport provides the broadcast-channel abstraction the
// messenger synchronizes over: named channels carrying typed events, with
// swappable backends (NATS for multi-process deployments, an in-process
// bus for tests and single-node setups).
package transport

import (
	"context"
	"errors"
	"strings"
)

// PresenceChannel is the single shared channel whose membership mirrors
// which users currently have an open session.
const PresenceChannel = "presence-messenger"

// presencePrefix marks channels with membership semantics.
const presencePrefix = "presence-"

// ErrClosed is returned when operating on a closed connection or bus.
var ErrClosed = errors.New("transport: closed")

// HandlerFunc receives the raw JSON payload of one event occurrence.
// Handlers must not block; they are invoked on the transport's delivery
// goroutine in per-channel publish order.
type HandlerFunc func(data []byte)

// Subscription is one active channel subscription held by a connection.
type Subscription interface {
	// Channel returns the subscribed channel name.
	Channel() string
	// Bind registers the handler for an event type, replacing any
	// previous handler for that type.
	Bind(event string, fn HandlerFunc)
	// Unbind removes the handler for an event type.
	Unbind(event string)
	// Close tears the subscription down. Closing twice is a no-op.
	// No events are delivered after Close returns.
	Close() error
}

// Conn is a client connection identified by the member it belongs to.
// The member identity is what presence channels track.
type Conn interface {
	MemberID() string
	Subscribe(channel string) (Subscription, error)
	Close()
}

// Bus is the pub/sub transport. Publish is the server-side write surface;
// Connect produces client connections for subscribing.
type Bus interface {
	Publish(ctx context.Context, channel, event string, payload any) error
	Connect(memberID string) (Conn, error)
	Close()
}

// UserChannel returns the personal channel for a user, keyed by the
// user's email handle.
func UserChannel(email string) string {
	return email
}

// ConversationChannel returns the broadcast channel for a conversation.
func ConversationChannel(conversationID string) string {
	return conversationID
}

// IsPresence reports whether the channel has presence semantics.
func IsPresence(channel string) bool {
	return strings.HasPrefix(channel, presencePrefix)
}
