package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// delivery is one inbound event queued for the session loop.
type delivery struct {
	channel string
	event   string
	data    []byte
}

// Options configures a Session.
type Options struct {
	// MarkSeen is invoked asynchronously when a conversation view is
	// opened and on every inbound messages:new while it stays open. It
	// must be safe to call repeatedly; the seen-receipt resolver on the
	// other end is idempotent.
	MarkSeen func(ctx context.Context, conversationID string)
	// Navigate is invoked when the open conversation is removed.
	Navigate func(conversationID string)
	// BottomThreshold overrides the scroll bottom-proximity threshold.
	BottomThreshold float64
}

// Session is one connected client. It runs a single-goroutine event
// loop: transport callbacks only enqueue deliveries, and all reconciler
// and presence mutation happens on the loop, so no locking is needed on
// the view state.
type Session struct {
	user       model.User
	conn       transport.Conn
	subs       *SubscriptionManager
	reconciler *Reconciler
	presence   *PresenceTracker
	logger     *logger.Logger
	markSeen   func(ctx context.Context, conversationID string)

	inbox    chan delivery
	commands chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession creates a session for the user over the connection.
func NewSession(conn transport.Conn, user model.User, log *logger.Logger, opts Options) *Session {
	threshold := opts.BottomThreshold
	if threshold == 0 {
		threshold = DefaultBottomThreshold
	}
	// Navigate runs off the loop goroutine so the callback may call back
	// into the session (LeaveConversation, EnterConversation) freely.
	navigate := opts.Navigate
	var onNavigateAway func(string)
	if navigate != nil {
		onNavigateAway = func(conversationID string) { go navigate(conversationID) }
	}
	return &Session{
		user:       user,
		conn:       conn,
		subs:       NewSubscriptionManager(conn, log),
		reconciler: NewReconciler(NewScrollTracker(threshold), onNavigateAway),
		presence:   NewPresenceTracker(),
		logger:     log,
		markSeen:   opts.MarkSeen,
		inbox:      make(chan delivery, 256),
		commands:   make(chan func()),
		done:       make(chan struct{}),
	}
}

// Start launches the session loop and subscribes the base context: the
// user's personal channel and the shared presence channel.
func (s *Session) Start(ctx context.Context) {
	go s.loop(ctx)
	s.do(func() {
		s.subs.Sync(s.wantedChannels(""))
	})
}

// Stop tears the session down: every subscription is closed, which stops
// further delivery immediately and releases the presence membership.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Session) loop(ctx context.Context) {
	defer func() {
		s.subs.Close()
		s.presence.Unsubscribe()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case fn := <-s.commands:
			fn()
		case d := <-s.inbox:
			s.handle(d)
		}
	}
}

// do runs fn on the loop and waits for it. Returns early if the session
// is stopped.
func (s *Session) do(fn func()) {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}
	select {
	case s.commands <- wrapped:
	case <-s.done:
		return
	}
	select {
	case <-ran:
	case <-s.done:
	}
}

// enqueue returns a transport handler that queues the event for the
// loop. Handlers never block transport delivery beyond the buffered
// queue and never touch session state directly.
func (s *Session) enqueue(channel, event string) transport.HandlerFunc {
	return func(data []byte) {
		select {
		case s.inbox <- delivery{channel: channel, event: event, data: data}:
		case <-s.done:
		}
	}
}

// wantedChannels derives the channel set for the active context: the
// user's personal channel, the presence channel, and the open
// conversation's channel if any.
func (s *Session) wantedChannels(openConversationID string) map[string]Binder {
	wanted := map[string]Binder{
		transport.UserChannel(s.user.Email): s.bindUserChannel,
		transport.PresenceChannel:           s.bindPresenceChannel,
	}
	if openConversationID != "" {
		wanted[transport.ConversationChannel(openConversationID)] = s.bindConversationChannel
	}
	return wanted
}

func (s *Session) bindUserChannel(sub transport.Subscription) {
	for _, event := range []string{
		model.EventConversationNew,
		model.EventConversationUpdate,
		model.EventConversationRemove,
		model.EventConversationUser,
	} {
		sub.Bind(event, s.enqueue(sub.Channel(), event))
	}
}

func (s *Session) bindConversationChannel(sub transport.Subscription) {
	for _, event := range []string{
		model.EventMessagesNew,
		model.EventMessageUpdate,
		model.EventMessagesUpdate,
	} {
		sub.Bind(event, s.enqueue(sub.Channel(), event))
	}
}

func (s *Session) bindPresenceChannel(sub transport.Subscription) {
	s.presence.Subscribe()
	for _, event := range []string{
		model.EventSubscriptionSucceeded,
		model.EventMemberAdded,
		model.EventMemberRemoved,
	} {
		sub.Bind(event, s.enqueue(sub.Channel(), event))
	}
}

// SetConversations seeds the sidebar from a canonical fetch.
func (s *Session) SetConversations(conversations []model.Conversation) {
	s.do(func() { s.reconciler.SetSidebar(conversations) })
}

// EnterConversation switches the active context to a conversation: the
// message view is materialized from the initial canonical fetch, the
// conversation channel is subscribed, and the seen trigger fires for the
// newly opened view.
func (s *Session) EnterConversation(conversationID string, initial []model.Message) {
	s.do(func() {
		if s.reconciler.OpenID() == conversationID {
			// Re-entry also retries any subscription that failed before.
			s.subs.Sync(s.wantedChannels(conversationID))
			return
		}
		s.reconciler.OpenConversation(conversationID, initial)
		s.subs.Sync(s.wantedChannels(conversationID))
		s.triggerSeen(conversationID)
	})
}

// LeaveConversation switches back to the sidebar-only context,
// unsubscribing the conversation channel.
func (s *Session) LeaveConversation() {
	s.do(func() {
		s.reconciler.CloseConversation()
		s.subs.Sync(s.wantedChannels(""))
	})
}

// triggerSeen dispatches the seen round trip off the loop so event
// delivery is never blocked on network I/O.
func (s *Session) triggerSeen(conversationID string) {
	if s.markSeen == nil {
		return
	}
	go s.markSeen(context.Background(), conversationID)
}

func (s *Session) handle(d delivery) {
	switch d.event {
	case model.EventSubscriptionSucceeded:
		snap, err := model.DecodePresenceSnapshot(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		ids := make([]string, len(snap.Members))
		for i, m := range snap.Members {
			ids[i] = m.ID
		}
		s.presence.ApplySnapshot(ids)

	case model.EventMemberAdded:
		m, err := model.DecodePresenceMember(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.presence.ApplyAdded(m.ID)

	case model.EventMemberRemoved:
		m, err := model.DecodePresenceMember(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.presence.ApplyRemoved(m.ID)

	case model.EventMessagesNew:
		evt, err := model.DecodeNewMessage(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.reconciler.ApplyNewMessage(d.channel, evt)
		// Keep the viewer's seen marker current while they watch the
		// conversation; the resolver no-ops when nothing changed.
		if d.channel == s.reconciler.OpenID() {
			s.triggerSeen(d.channel)
		}

	case model.EventMessageUpdate, model.EventMessagesUpdate:
		msg, err := model.DecodeMessage(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.reconciler.ApplyMessageUpdate(msg)

	case model.EventConversationNew:
		conv, err := model.DecodeConversation(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.reconciler.ApplyConversationNew(conv)

	case model.EventConversationUpdate:
		evt, err := model.DecodeConversationUpdate(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.reconciler.ApplyConversationUpdate(evt)

	case model.EventConversationUser:
		evt, err := model.DecodeConversationUser(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		s.reconciler.ApplyConversationUser(evt)

	case model.EventConversationRemove:
		conv, err := model.DecodeConversation(d.data)
		if err != nil {
			s.dropMalformed(d, err)
			return
		}
		if s.reconciler.ApplyConversationRemove(conv.ID) {
			// The open view is gone; drop its channel now rather than
			// waiting for the next context switch.
			s.subs.Sync(s.wantedChannels(""))
		}

	default:
		s.logger.Debug("ignoring unknown event",
			zap.String("channel", d.channel),
			zap.String("event", d.event),
		)
	}
}

func (s *Session) dropMalformed(d delivery, err error) {
	s.logger.Warn("dropping malformed event",
		zap.String("channel", d.channel),
		zap.String("event", d.event),
		zap.Error(err),
	)
}

// Conversations returns a snapshot of the sidebar.
func (s *Session) Conversations() []model.Conversation {
	var out []model.Conversation
	s.do(func() {
		out = append(out, s.reconciler.Sidebar()...)
	})
	return out
}

// Messages returns a snapshot of the open conversation's messages.
func (s *Session) Messages() []model.Message {
	var out []model.Message
	s.do(func() {
		out = append(out, s.reconciler.Messages()...)
	})
	return out
}

// IsOnline reports whether the user with the given handle is present.
func (s *Session) IsOnline(email string) bool {
	var online bool
	s.do(func() { online = s.presence.IsOnline(email) })
	return online
}

// OnlineMembers returns the sorted presence member handles.
func (s *Session) OnlineMembers() []string {
	var out []string
	s.do(func() { out = s.presence.Members() })
	return out
}

// UnseenCount returns the new-messages badge for the open view.
func (s *Session) UnseenCount() int {
	var n int
	s.do(func() { n = s.reconciler.Scroll().Unseen() })
	return n
}

// SetScrollPosition records the viewer's scroll position in the open
// view.
func (s *Session) SetScrollPosition(scrollHeight, scrollTop, clientHeight float64) {
	s.do(func() { s.reconciler.Scroll().SetPosition(scrollHeight, scrollTop, clientHeight) })
}

// ScrollToBottom records a manual scroll to the bottom.
func (s *Session) ScrollToBottom() {
	s.do(func() { s.reconciler.Scroll().ScrollToBottom() })
}
