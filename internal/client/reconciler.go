// Package client implements the client side of the synchronization
// protocol: channel subscriptions, the event-merging reconciler, presence
// tracking, and the single-threaded session loop that owns them.
package client

import (
	"github.com/samber/lo"

	"github.com/threadline-chat/messenger-platform/internal/model"
)

// Reconciler merges inbound channel events into the local view: the
// sidebar collection of conversations (most recent first) and the message
// sequence of the open conversation. Every merge is idempotent and
// order-tolerant, so at-least-once delivery and cross-channel races
// cannot corrupt state.
//
// A Reconciler is owned by a single Session loop and must only be touched
// from it.
type Reconciler struct {
	sidebar  []model.Conversation
	messages []model.Message

	openID         string
	scroll         *ScrollTracker
	onNavigateAway func(conversationID string)
}

// NewReconciler creates a reconciler. onNavigateAway is invoked when the
// currently open conversation is removed; it may be nil.
func NewReconciler(scroll *ScrollTracker, onNavigateAway func(string)) *Reconciler {
	if scroll == nil {
		scroll = NewScrollTracker(DefaultBottomThreshold)
	}
	return &Reconciler{scroll: scroll, onNavigateAway: onNavigateAway}
}

// SetSidebar replaces the sidebar collection with a canonical fetch.
func (r *Reconciler) SetSidebar(conversations []model.Conversation) {
	r.sidebar = append([]model.Conversation(nil), conversations...)
}

// Sidebar returns the current sidebar collection.
func (r *Reconciler) Sidebar() []model.Conversation {
	return r.sidebar
}

// OpenConversation materializes the message view for a conversation from
// a canonical fetch and resets the scroll state.
func (r *Reconciler) OpenConversation(conversationID string, initial []model.Message) {
	r.openID = conversationID
	r.messages = append([]model.Message(nil), initial...)
	r.scroll.ScrollToBottom()
}

// CloseConversation tears the message view down.
func (r *Reconciler) CloseConversation() {
	r.openID = ""
	r.messages = nil
}

// OpenID returns the id of the open conversation, or "".
func (r *Reconciler) OpenID() string {
	return r.openID
}

// Messages returns the message sequence of the open conversation.
func (r *Reconciler) Messages() []model.Message {
	return r.messages
}

// Scroll returns the scroll tracker for the open conversation view.
func (r *Reconciler) Scroll() *ScrollTracker {
	return r.scroll
}

// ApplyNewMessage merges a messages:new event into the open view. A
// message whose id is already present is suppressed as a duplicate;
// otherwise it is appended and the scroll heuristic decides between
// auto-scrolling and incrementing the unseen badge. Returns true when the
// message was appended.
func (r *Reconciler) ApplyNewMessage(conversationID string, evt model.NewMessageEvent) bool {
	if conversationID != r.openID {
		return false
	}
	if _, exists := lo.Find(r.messages, func(m model.Message) bool {
		return m.ID == evt.ID
	}); exists {
		return false
	}
	r.messages = append(r.messages, evt.Message(conversationID))
	r.scroll.OnNewMessage()
	return true
}

// ApplyMessageUpdate replaces a message in place, preserving its
// position. An update for a message that is not materialized is a no-op,
// including an update arriving before its messages:new.
func (r *Reconciler) ApplyMessageUpdate(msg model.Message) {
	for i := range r.messages {
		if r.messages[i].ID == msg.ID {
			r.messages[i] = msg
			return
		}
	}
}

// ApplyConversationNew prepends a conversation to the sidebar. A
// conversation already present is left untouched.
func (r *Reconciler) ApplyConversationNew(conv model.Conversation) {
	if r.sidebarIndex(conv.ID) >= 0 {
		return
	}
	r.sidebar = append([]model.Conversation{conv}, r.sidebar...)
}

// ApplyConversationUpdate shallow-merges an update into the matching
// sidebar entry: the messages field is replaced when the event carries
// messages, the member list when it carries members, and everything else
// is preserved. The entry keeps its position; the sidebar is not
// re-sorted on update.
func (r *Reconciler) ApplyConversationUpdate(evt model.ConversationUpdateEvent) {
	i := r.sidebarIndex(evt.ID)
	if i < 0 {
		return
	}
	if evt.Messages != nil {
		r.sidebar[i].Messages = evt.Messages
	}
	if evt.Members != nil {
		r.sidebar[i].Members = evt.Members
	}
}

// ApplyConversationUser records a new last message on the matching
// sidebar entry. The summary is appended only if the message id is not
// already present; the entry keeps its position.
func (r *Reconciler) ApplyConversationUser(evt model.ConversationUserEvent) {
	i := r.sidebarIndex(evt.ID)
	if i < 0 {
		return
	}
	conv := &r.sidebar[i]
	if lo.ContainsBy(conv.Messages, func(m model.Message) bool {
		return m.ID == evt.LastMessage.ID
	}) {
		return
	}
	conv.Messages = append(conv.Messages, model.Message{
		ID:             evt.LastMessage.ID,
		ConversationID: evt.ID,
		Sender:         evt.LastMessage.Sender,
		Body:           evt.LastMessage.Body,
		Image:          evt.LastMessage.Image,
		Seen:           []model.SenderSummary{evt.LastMessage.Sender},
		CreatedAt:      evt.LastMessage.CreatedAt,
	})
	conv.LastMessageAt = evt.LastMessage.CreatedAt
}

// ApplyConversationRemove drops the conversation from the sidebar. When
// the removed conversation is the open one, navigation away fires exactly
// once; a duplicate remove finds nothing open and does nothing. Returns
// true when navigation was triggered.
func (r *Reconciler) ApplyConversationRemove(conversationID string) bool {
	if i := r.sidebarIndex(conversationID); i >= 0 {
		r.sidebar = append(r.sidebar[:i], r.sidebar[i+1:]...)
	}
	if conversationID != r.openID {
		return false
	}
	r.CloseConversation()
	if r.onNavigateAway != nil {
		r.onNavigateAway(conversationID)
	}
	return true
}

func (r *Reconciler) sidebarIndex(conversationID string) int {
	for i := range r.sidebar {
		if r.sidebar[i].ID == conversationID {
			return i
		}
	}
	return -1
}
