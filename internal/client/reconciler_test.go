package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-chat/messenger-platform/internal/model"
)

func newMessageEvent(id, body string) model.NewMessageEvent {
	return model.NewMessageEvent{
		ID:        id,
		Body:      body,
		Sender:    model.SenderSummary{ID: "u-alice", Name: "Alice", Email: "alice@example.com"},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sidebarConv(id string, lastMessageAt time.Time) model.Conversation {
	return model.Conversation{
		ID:            id,
		LastMessageAt: lastMessageAt,
		Members: []model.User{
			{ID: "u-alice", Email: "alice@example.com", Name: "Alice"},
			{ID: "u-bob", Email: "bob@example.com", Name: "Bob"},
		},
	}
}

func TestApplyNewMessageAppendsOnce(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.OpenConversation("c1", nil)

	evt := newMessageEvent("m1", "hello")
	require.True(t, r.ApplyNewMessage("c1", evt))
	require.Len(t, r.Messages(), 1)

	// Redelivery of the same event must not duplicate the message.
	require.False(t, r.ApplyNewMessage("c1", evt))
	require.Len(t, r.Messages(), 1)
	assert.Equal(t, "m1", r.Messages()[0].ID)
	assert.Equal(t, []model.SenderSummary{evt.Sender}, r.Messages()[0].Seen)
}

func TestApplyNewMessageIgnoresOtherConversations(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.OpenConversation("c1", nil)

	require.False(t, r.ApplyNewMessage("c2", newMessageEvent("m1", "hello")))
	assert.Empty(t, r.Messages())

	r.CloseConversation()
	require.False(t, r.ApplyNewMessage("c1", newMessageEvent("m2", "hi")))
}

func TestApplyMessageUpdateBeforeNewIsNoop(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.OpenConversation("c1", nil)

	// Cross-channel race: the seen update can beat messages:new.
	updated := newMessageEvent("m1", "hello").Message("c1")
	updated.Seen = append(updated.Seen, model.SenderSummary{ID: "u-bob", Email: "bob@example.com"})
	r.ApplyMessageUpdate(updated)
	require.Empty(t, r.Messages())

	// The late messages:new still lands with its own payload.
	require.True(t, r.ApplyNewMessage("c1", newMessageEvent("m1", "hello")))
	require.Len(t, r.Messages(), 1)
	assert.Len(t, r.Messages()[0].Seen, 1)
}

func TestApplyMessageUpdateReplacesInPlace(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.OpenConversation("c1", []model.Message{
		newMessageEvent("m1", "first").Message("c1"),
		newMessageEvent("m2", "second").Message("c1"),
		newMessageEvent("m3", "third").Message("c1"),
	})

	updated := newMessageEvent("m2", "second").Message("c1")
	updated.Seen = append(updated.Seen, model.SenderSummary{ID: "u-bob", Email: "bob@example.com"})
	r.ApplyMessageUpdate(updated)

	msgs := r.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Len(t, msgs[1].Seen, 2)
}

func TestApplyConversationNewPrependsOnce(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.SetSidebar([]model.Conversation{sidebarConv("c1", time.Now())})

	r.ApplyConversationNew(sidebarConv("c2", time.Now()))
	require.Len(t, r.Sidebar(), 2)
	assert.Equal(t, "c2", r.Sidebar()[0].ID)

	r.ApplyConversationNew(sidebarConv("c2", time.Now()))
	assert.Len(t, r.Sidebar(), 2)
}

func TestApplyConversationUpdateKeepsPosition(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(nil, nil)
	r.SetSidebar([]model.Conversation{
		sidebarConv("c1", base.Add(2*time.Hour)),
		sidebarConv("c2", base.Add(time.Hour)),
		sidebarConv("c3", base),
	})

	seen := newMessageEvent("m9", "hello").Message("c2")
	r.ApplyConversationUpdate(model.ConversationUpdateEvent{
		ID:       "c2",
		Messages: []model.Message{seen},
	})

	// The entry absorbs the update but the sidebar keeps its order.
	sb := r.Sidebar()
	require.Equal(t, []string{"c1", "c2", "c3"}, []string{sb[0].ID, sb[1].ID, sb[2].ID})
	require.Len(t, sb[1].Messages, 1)
	assert.Equal(t, "m9", sb[1].Messages[0].ID)
	// Members untouched when the event carries none.
	assert.Len(t, sb[1].Members, 2)

	// Unknown conversation: no-op.
	r.ApplyConversationUpdate(model.ConversationUpdateEvent{ID: "nope"})
	assert.Len(t, r.Sidebar(), 3)
}

func TestApplyConversationUpdateReplacesMembers(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.SetSidebar([]model.Conversation{sidebarConv("c1", time.Now())})

	members := []model.User{{ID: "u-carol", Email: "carol@example.com", Name: "Carol"}}
	r.ApplyConversationUpdate(model.ConversationUpdateEvent{ID: "c1", Members: members})

	require.Len(t, r.Sidebar()[0].Members, 1)
	assert.Equal(t, "u-carol", r.Sidebar()[0].Members[0].ID)
}

func TestApplyConversationUserRecordsLastMessage(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(nil, nil)
	r.SetSidebar([]model.Conversation{
		sidebarConv("c1", base.Add(time.Hour)),
		sidebarConv("c2", base),
	})

	evt := model.ConversationUserEvent{
		ID: "c2",
		LastMessage: model.LastMessageSummary{
			ID:        "m1",
			Body:      "ping",
			Sender:    model.SenderSummary{ID: "u-alice", Email: "alice@example.com"},
			CreatedAt: base.Add(2 * time.Hour),
		},
	}
	r.ApplyConversationUser(evt)

	sb := r.Sidebar()
	// Entry keeps its position even though its last message is now newest.
	require.Equal(t, "c2", sb[1].ID)
	require.Len(t, sb[1].Messages, 1)
	assert.Equal(t, base.Add(2*time.Hour), sb[1].LastMessageAt)

	// Redelivery is suppressed by message id.
	r.ApplyConversationUser(evt)
	assert.Len(t, r.Sidebar()[1].Messages, 1)
}

func TestApplyConversationRemoveNavigatesExactlyOnce(t *testing.T) {
	var navigated []string
	r := NewReconciler(nil, func(id string) { navigated = append(navigated, id) })
	r.SetSidebar([]model.Conversation{sidebarConv("c1", time.Now()), sidebarConv("c2", time.Now())})
	r.OpenConversation("c1", nil)

	require.True(t, r.ApplyConversationRemove("c1"))
	assert.Equal(t, []string{"c1"}, navigated)
	assert.Empty(t, r.OpenID())
	require.Len(t, r.Sidebar(), 1)

	// Duplicate remove: nothing left to drop, nothing to navigate.
	require.False(t, r.ApplyConversationRemove("c1"))
	assert.Equal(t, []string{"c1"}, navigated)
}

func TestApplyConversationRemoveOtherConversation(t *testing.T) {
	var navigated int
	r := NewReconciler(nil, func(string) { navigated++ })
	r.SetSidebar([]model.Conversation{sidebarConv("c1", time.Now()), sidebarConv("c2", time.Now())})
	r.OpenConversation("c1", nil)

	require.False(t, r.ApplyConversationRemove("c2"))
	assert.Zero(t, navigated)
	assert.Equal(t, "c1", r.OpenID())
	assert.Len(t, r.Sidebar(), 1)
}
