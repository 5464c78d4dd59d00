package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNewMessageValidates(t *testing.T) {
	evt, err := DecodeNewMessage([]byte(`{"id":"m1","body":"hi","sender":{"id":"u1","email":"a@b.c"},"createdAt":"2026-03-01T12:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", evt.ID)

	_, err = DecodeNewMessage([]byte(`{"body":"no id","sender":{"id":"u1"}}`))
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = DecodeNewMessage([]byte(`{"id":"m1","body":"no sender"}`))
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = DecodeNewMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestNewMessageEventToMessage(t *testing.T) {
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := NewMessageEvent{
		ID:        "m1",
		Body:      "hi",
		Sender:    SenderSummary{ID: "u1", Email: "a@b.c"},
		CreatedAt: sent,
	}

	msg := evt.Message("c1")
	assert.Equal(t, "c1", msg.ConversationID)
	// The sender has implicitly seen their own message.
	require.Len(t, msg.Seen, 1)
	assert.Equal(t, "u1", msg.Seen[0].ID)
}

func TestDecodeConversationUpdateDistinguishesEmptyFromAbsent(t *testing.T) {
	// Absent messages field: nil slice, meaning "do not touch messages".
	evt, err := DecodeConversationUpdate([]byte(`{"id":"c1"}`))
	require.NoError(t, err)
	assert.Nil(t, evt.Messages)
	assert.Nil(t, evt.Members)

	// Present-but-empty still counts as a replacement.
	evt, err = DecodeConversationUpdate([]byte(`{"id":"c1","messages":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, evt.Messages)

	_, err = DecodeConversationUpdate([]byte(`{}`))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDecodePresencePayloads(t *testing.T) {
	m, err := DecodePresenceMember([]byte(`{"id":"bob@example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", m.ID)

	_, err = DecodePresenceMember([]byte(`{}`))
	require.ErrorIs(t, err, ErrMalformedEvent)

	snap, err := DecodePresenceSnapshot([]byte(`{"members":[{"id":"a"},{"id":"b"}]}`))
	require.NoError(t, err)
	assert.Len(t, snap.Members, 2)

	// An empty snapshot is valid: the subscriber is alone.
	snap, err = DecodePresenceSnapshot([]byte(`{"members":[]}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Members)
}

func TestConversationHelpers(t *testing.T) {
	alice := User{ID: "u-alice", Email: "alice@example.com", Name: "Alice"}
	bob := User{ID: "u-bob", Email: "bob@example.com", Name: "Bob"}
	conv := Conversation{
		ID:      "c1",
		Members: []User{alice, bob},
		Messages: []Message{
			{ID: "m1", Body: "first"},
			{ID: "m2", Body: "last"},
		},
	}

	assert.True(t, conv.HasMember("u-alice"))
	assert.False(t, conv.HasMember("u-carol"))

	last := conv.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, "m2", last.ID)

	other, ok := conv.OtherMember("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "u-bob", other.ID)

	empty := Conversation{ID: "c2"}
	assert.Nil(t, empty.LastMessage())
}

func TestMessagePreview(t *testing.T) {
	text := Message{Body: "hello"}
	assert.Equal(t, "hello", text.Preview())

	image := Message{Body: "hello", Image: "https://x/y.png"}
	assert.Equal(t, "Sent an image", image.Preview())
}
