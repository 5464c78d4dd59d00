package client

import (
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// Binder attaches event handlers to a freshly opened subscription.
type Binder func(sub transport.Subscription)

// SubscriptionManager owns the set of active channel subscriptions for
// one client session, keeping exactly one subscription per channel name.
// Subscribing to an already-subscribed channel and unsubscribing from an
// unknown one are both no-ops. A channel whose transport subscribe fails
// is simply left inactive; the next Sync for a context that wants it
// retries, so failures heal on context re-entry rather than on a timer.
type SubscriptionManager struct {
	conn   transport.Conn
	logger *logger.Logger
	active map[string]transport.Subscription
}

// NewSubscriptionManager creates a manager over the connection.
func NewSubscriptionManager(conn transport.Conn, log *logger.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		conn:   conn,
		logger: log,
		active: make(map[string]transport.Subscription),
	}
}

// Subscribe opens the channel if it is not already active and hands the
// new subscription to bind. Returns true if a new subscription was
// opened.
func (m *SubscriptionManager) Subscribe(channel string, bind Binder) bool {
	if _, ok := m.active[channel]; ok {
		return false
	}
	sub, err := m.conn.Subscribe(channel)
	if err != nil {
		m.logger.Warn("channel subscribe failed, will retry on next context entry",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return false
	}
	if bind != nil {
		bind(sub)
	}
	m.active[channel] = sub
	return true
}

// Unsubscribe closes the channel's subscription if one is active.
func (m *SubscriptionManager) Unsubscribe(channel string) {
	sub, ok := m.active[channel]
	if !ok {
		return
	}
	delete(m.active, channel)
	if err := sub.Close(); err != nil {
		m.logger.Warn("channel unsubscribe failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// Sync reconciles the active set against the wanted channels: channels
// not yet active are subscribed and bound, channels no longer wanted are
// closed.
func (m *SubscriptionManager) Sync(wanted map[string]Binder) {
	for channel := range m.active {
		if _, keep := wanted[channel]; !keep {
			m.Unsubscribe(channel)
		}
	}
	for channel, bind := range wanted {
		m.Subscribe(channel, bind)
	}
}

// Active reports whether the channel currently has a subscription.
func (m *SubscriptionManager) Active(channel string) bool {
	_, ok := m.active[channel]
	return ok
}

// Close tears every subscription down.
func (m *SubscriptionManager) Close() {
	for channel := range m.active {
		m.Unsubscribe(channel)
	}
}
