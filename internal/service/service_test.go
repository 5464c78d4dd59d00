package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/publish"
	"github.com/threadline-chat/messenger-platform/internal/store"
	"github.com/threadline-chat/messenger-platform/internal/transport"
	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

type publishedEvent struct {
	Channel string
	Event   string
	Payload any
}

// recordingBus captures publishes and can be told to refuse specific
// channels, for exercising per-recipient failure isolation.
type recordingBus struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   map[string]bool
}

func (b *recordingBus) Publish(_ context.Context, channel, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[channel] {
		return errors.New("publish refused")
	}
	b.events = append(b.events, publishedEvent{Channel: channel, Event: event, Payload: payload})
	return nil
}

func (b *recordingBus) Connect(string) (transport.Conn, error) {
	return nil, errors.New("recordingBus does not support connections")
}

func (b *recordingBus) Close() {}

func (b *recordingBus) byEvent(event string) []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedEvent
	for _, e := range b.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fixture struct {
	store *store.MemoryStore
	bus   *recordingBus

	conversations *ConversationService
	messages      *MessageService
	seen          *SeenService

	alice, bob, carol model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	bus := &recordingBus{fail: make(map[string]bool)}
	pub := publish.New(bus, logger.NewNop())

	f := &fixture{
		store:         st,
		bus:           bus,
		conversations: NewConversationService(st, pub, logger.NewNop()),
		messages:      NewMessageService(st, pub, logger.NewNop()),
		seen:          NewSeenService(st, pub, logger.NewNop()),
		alice:         model.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice", CreatedAt: time.Now()},
		bob:           model.User{ID: "u-bob", Email: "bob@example.com", Name: "Bob", CreatedAt: time.Now()},
		carol:         model.User{ID: "u-carol", Email: "carol@example.com", Name: "Carol", CreatedAt: time.Now()},
	}
	ctx := context.Background()
	for _, u := range []model.User{f.alice, f.bob, f.carol} {
		require.NoError(t, st.CreateUser(ctx, u))
	}
	return f
}

func (f *fixture) direct(t *testing.T) model.Conversation {
	t.Helper()
	conv, err := f.conversations.Create(context.Background(), f.alice, &model.CreateConversationRequest{UserID: f.bob.ID})
	require.NoError(t, err)
	return conv
}

func (f *fixture) group(t *testing.T) model.Conversation {
	t.Helper()
	conv, err := f.conversations.Create(context.Background(), f.alice, &model.CreateConversationRequest{
		IsGroup:   true,
		Name:      "the gang",
		MemberIDs: []string{f.bob.ID, f.carol.ID},
	})
	require.NoError(t, err)
	return conv
}
