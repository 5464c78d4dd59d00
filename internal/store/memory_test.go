package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-chat/messenger-platform/internal/model"
)

var (
	alice = model.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice"}
	bob   = model.User{ID: "u-bob", Email: "bob@example.com", Name: "Bob"}
	carol = model.User{ID: "u-carol", Email: "carol@example.com", Name: "Carol"}
)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	ctx := context.Background()
	for _, u := range []model.User{alice, bob, carol} {
		require.NoError(t, s.CreateUser(ctx, u))
	}
	return s
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.ErrorIs(t, s.CreateUser(ctx, alice), ErrConflict)
	require.ErrorIs(t, s.CreateUser(ctx, model.User{ID: "other", Email: alice.Email}), ErrConflict)
}

func TestFindUsersExcludesCaller(t *testing.T) {
	s := seeded(t)

	users, err := s.FindUsers(context.Background(), alice.Email)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, alice.Email, u.Email)
	}
}

func TestFindDirectConversation(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, model.Conversation{
		ID:        "c1",
		Members:   []model.User{alice, bob},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	found, err := s.FindDirectConversation(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	_, err = s.FindDirectConversation(ctx, alice.ID, carol.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConversationsForSortsByActivity(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateConversation(ctx, model.Conversation{ID: "old", Members: []model.User{alice, bob}, CreatedAt: base})
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, model.Conversation{ID: "new", Members: []model.User{alice, carol}, CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	convs, err := s.ConversationsFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, []string{convs[0].ID, convs[1].ID})

	// Activity in the older conversation moves it to the front.
	_, err = s.AppendMessage(ctx, "old", model.Message{ID: "m1", Sender: alice.Summary(), Body: "hi", CreatedAt: base.Add(2 * time.Hour)})
	require.NoError(t, err)

	convs, err = s.ConversationsFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", convs[0].ID)

	// Non-members see nothing.
	convs, err = s.ConversationsFor(ctx, "u-nobody")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestMarkMessageSeenGrowsOnce(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, model.Conversation{ID: "c1", Members: []model.User{alice, bob}, CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "c1", model.Message{ID: "m1", Sender: alice.Summary(), Body: "hi", Seen: []model.SenderSummary{alice.Summary()}})
	require.NoError(t, err)

	first, err := s.MarkMessageSeen(ctx, "m1", bob)
	require.NoError(t, err)
	require.Len(t, first.Seen, 2)

	// The seen set only grows; a re-mark changes nothing.
	second, err := s.MarkMessageSeen(ctx, "m1", bob)
	require.NoError(t, err)
	assert.Len(t, second.Seen, 2)

	_, err = s.MarkMessageSeen(ctx, "missing", bob)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddRemoveMember(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, model.Conversation{ID: "c1", IsGroup: true, Name: "g", Members: []model.User{alice, bob}, CreatedAt: time.Now()})
	require.NoError(t, err)

	conv, err := s.AddMember(ctx, "c1", carol)
	require.NoError(t, err)
	require.Len(t, conv.Members, 3)

	_, err = s.AddMember(ctx, "c1", carol)
	require.ErrorIs(t, err, ErrConflict)

	conv, err = s.RemoveMember(ctx, "c1", bob.ID)
	require.NoError(t, err)
	require.Len(t, conv.Members, 2)
	assert.False(t, conv.HasMember(bob.ID))

	_, err = s.RemoveMember(ctx, "c1", bob.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversationDropsMessageIndex(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, model.Conversation{ID: "c1", Members: []model.User{alice, bob}, CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "c1", model.Message{ID: "m1", Sender: alice.Summary(), Body: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, "c1"))
	require.ErrorIs(t, s.DeleteConversation(ctx, "c1"), ErrNotFound)

	_, err = s.MarkMessageSeen(ctx, "m1", bob)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReturnedEntitiesAreSnapshots(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateConversation(ctx, model.Conversation{ID: "c1", Members: []model.User{alice, bob}, CreatedAt: time.Now()})
	require.NoError(t, err)

	conv, err := s.FindConversation(ctx, "c1")
	require.NoError(t, err)
	conv.Members[0].Name = "mutated"

	fresh, err := s.FindConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", fresh.Members[0].Name)
}
