package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus. Delivery is synchronous and serialized
// per channel, so events on one channel are observed in publish order.
// It backs tests and single-process deployments.
type MemoryBus struct {
	mu       sync.Mutex
	channels map[string]*memoryChannel
	closed   bool
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{channels: make(map[string]*memoryChannel)}
}

type memoryChannel struct {
	// mu serializes delivery on the channel and guards subs/members.
	mu      sync.Mutex
	name    string
	subs    []*memorySubscription
	members map[string]int
}

func (b *MemoryBus) channel(name string) *memoryChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[name]
	if !ok {
		ch = &memoryChannel{name: name}
		if IsPresence(name) {
			ch.members = make(map[string]int)
		}
		b.channels[name] = ch
	}
	return ch
}

// Publish delivers the event to every current subscriber of the channel.
// Channels with no subscribers swallow the event.
func (b *MemoryBus) Publish(_ context.Context, channel, event string, payload any) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	ch := b.channels[channel]
	b.mu.Unlock()
	if ch == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, sub := range ch.subs {
		sub.dispatch(event, data)
	}
	return nil
}

// Connect returns a connection identified by the given member.
func (b *MemoryBus) Connect(memberID string) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &memoryConn{bus: b, memberID: memberID}, nil
}

// Close shuts the bus down; subsequent publishes and connects fail.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.channels = make(map[string]*memoryChannel)
}

type memoryConn struct {
	bus      *MemoryBus
	memberID string

	mu     sync.Mutex
	subs   []*memorySubscription
	closed bool
}

func (c *memoryConn) MemberID() string { return c.memberID }

func (c *memoryConn) Subscribe(channel string) (Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	ch := c.bus.channel(channel)
	sub := &memorySubscription{
		ch:       ch,
		member:   c.memberID,
		handlers: make(map[string]HandlerFunc),
		pending:  make(map[string][][]byte),
	}

	ch.mu.Lock()
	ch.subs = append(ch.subs, sub)
	if ch.members != nil {
		ch.members[c.memberID]++
		snapshot := presenceSnapshotPayload(ch.members)
		sub.dispatch(EventSubscriptionSucceeded, snapshot)
		if ch.members[c.memberID] == 1 {
			added, _ := json.Marshal(presenceMember{ID: c.memberID})
			for _, other := range ch.subs {
				if other != sub {
					other.dispatch(EventMemberAdded, added)
				}
			}
		}
	}
	ch.mu.Unlock()

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *memoryConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Event names synthesized by presence channels. They mirror the constants
// in the model package; transport stays payload-agnostic otherwise.
const (
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventMemberAdded           = "member_added"
	EventMemberRemoved         = "member_removed"
)

type presenceMember struct {
	ID string `json:"id"`
}

type presenceSnapshot struct {
	Members []presenceMember `json:"members"`
}

func presenceSnapshotPayload(members map[string]int) []byte {
	snap := presenceSnapshot{Members: make([]presenceMember, 0, len(members))}
	for id := range members {
		snap.Members = append(snap.Members, presenceMember{ID: id})
	}
	data, _ := json.Marshal(snap)
	return data
}

type memorySubscription struct {
	ch     *memoryChannel
	member string

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	// pending holds events that arrived before a handler was bound for
	// their type; Bind flushes them in arrival order.
	pending map[string][][]byte
	closed  bool
}

func (s *memorySubscription) Channel() string { return s.ch.name }

func (s *memorySubscription) Bind(event string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers[event] = fn
	for _, data := range s.pending[event] {
		fn(data)
	}
	delete(s.pending, event)
}

func (s *memorySubscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// dispatch is called with the channel mutex held, preserving per-channel
// ordering end to end.
func (s *memorySubscription) dispatch(event string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if fn, ok := s.handlers[event]; ok {
		fn(data)
		return
	}
	s.pending[event] = append(s.pending[event], data)
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.handlers = nil
	s.pending = nil
	member := s.member
	s.mu.Unlock()

	ch := s.ch
	ch.mu.Lock()
	for i, sub := range ch.subs {
		if sub == s {
			ch.subs = append(ch.subs[:i], ch.subs[i+1:]...)
			break
		}
	}
	if ch.members != nil {
		ch.members[member]--
		if ch.members[member] <= 0 {
			delete(ch.members, member)
			removed, _ := json.Marshal(presenceMember{ID: member})
			for _, sub := range ch.subs {
				sub.dispatch(EventMemberRemoved, removed)
			}
		}
	}
	ch.mu.Unlock()
	return nil
}
