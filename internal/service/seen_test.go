package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/store"
)

func TestMarkSeenRecordsAndPublishes(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.alice, &model.SendMessageRequest{ConversationID: conv.ID, Message: "hello"})
	require.NoError(t, err)

	result, err := f.seen.MarkSeenIfNeeded(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	require.True(t, result.Marked)
	require.NotNil(t, result.Message)
	assert.Len(t, result.Message.Seen, 2)

	// conversation:update to the viewer's personal channel.
	updates := f.bus.byEvent(model.EventConversationUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "bob@example.com", updates[0].Channel)

	// message:update to the conversation channel.
	msgUpdates := f.bus.byEvent(model.EventMessageUpdate)
	require.Len(t, msgUpdates, 1)
	assert.Equal(t, conv.ID, msgUpdates[0].Channel)
}

func TestMarkSeenSecondCallIsNoop(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.alice, &model.SendMessageRequest{ConversationID: conv.ID, Message: "hello"})
	require.NoError(t, err)

	first, err := f.seen.MarkSeenIfNeeded(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	require.True(t, first.Marked)
	before := f.bus.count()

	// View open plus inbound redeliveries call this repeatedly; nothing
	// may be rewritten or republished.
	second, err := f.seen.MarkSeenIfNeeded(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	assert.False(t, second.Marked)
	require.NotNil(t, second.Message)
	assert.Len(t, second.Message.Seen, 2)
	assert.Equal(t, before, f.bus.count())
}

func TestMarkSeenEmptyConversation(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)
	before := f.bus.count()

	result, err := f.seen.MarkSeenIfNeeded(context.Background(), conv.ID, f.bob)
	require.NoError(t, err)
	assert.False(t, result.Marked)
	assert.Nil(t, result.Message)
	assert.Equal(t, conv.ID, result.Conversation.ID)
	assert.Equal(t, before, f.bus.count())
}

func TestMarkSeenSenderAlreadySeen(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.alice, &model.SendMessageRequest{ConversationID: conv.ID, Message: "hello"})
	require.NoError(t, err)
	before := f.bus.count()

	// The sender is seeded into the seen set at send time.
	result, err := f.seen.MarkSeenIfNeeded(ctx, conv.ID, f.alice)
	require.NoError(t, err)
	assert.False(t, result.Marked)
	assert.Equal(t, before, f.bus.count())
}

func TestMarkSeenOnlyTouchesLastMessage(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.alice, &model.SendMessageRequest{ConversationID: conv.ID, Message: "first"})
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, f.alice, &model.SendMessageRequest{ConversationID: conv.ID, Message: "second"})
	require.NoError(t, err)

	result, err := f.seen.MarkSeenIfNeeded(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	require.True(t, result.Marked)
	assert.Equal(t, "second", result.Message.Body)

	stored, err := f.store.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages[0].Seen, 1)
	assert.Len(t, stored.Messages[1].Seen, 2)
}

func TestMarkSeenEnforcesMembership(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)

	_, err := f.seen.MarkSeenIfNeeded(context.Background(), conv.ID, f.carol)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkSeenPublishFailuresAreIndependent(t *testing.T) {
	f := newFixture(t)
	conv := f.direct(t)
	ctx := context.Background()

	_, err := f.messages.Send(ctx, f.alice, &model.SendMessageRequest{ConversationID: conv.ID, Message: "hello"})
	require.NoError(t, err)

	// The viewer's personal channel refuses the publish; the conversation
	// channel must still get its message:update and the write sticks.
	f.bus.fail["bob@example.com"] = true
	result, err := f.seen.MarkSeenIfNeeded(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	require.True(t, result.Marked)

	require.Empty(t, f.bus.byEvent(model.EventConversationUpdate))
	require.Len(t, f.bus.byEvent(model.EventMessageUpdate), 1)

	stored, err := f.store.FindConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages[0].Seen, 2)
}
