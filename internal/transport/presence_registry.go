package transport

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/pkg/logger"
	"github.com/threadline-chat/messenger-platform/pkg/metrics"
)

// PresenceRegistry is the server-side authority for presence-channel
// membership over NATS. It consumes join/leave announces, serves
// membership snapshots over request/reply, and broadcasts member_added /
// member_removed transitions on the channel itself.
//
// A user with several open sessions stays a single member until the last
// session leaves.
type PresenceRegistry struct {
	bus    *NATSBus
	logger *logger.Logger

	mu       sync.Mutex
	channels map[string]map[string]int

	subs []*nats.Subscription
}

// NewPresenceRegistry creates a registry bound to the bus.
func NewPresenceRegistry(bus *NATSBus, log *logger.Logger) *PresenceRegistry {
	return &PresenceRegistry{
		bus:      bus,
		logger:   log,
		channels: make(map[string]map[string]int),
	}
}

// Start subscribes to the presence control subjects.
func (r *PresenceRegistry) Start() error {
	nc := r.bus.Conn()

	joinSub, err := nc.Subscribe("presence.join.*", func(m *nats.Msg) {
		r.handleJoin(channelFromControlSubject(m.Subject), m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe presence joins: %w", err)
	}
	r.subs = append(r.subs, joinSub)

	leaveSub, err := nc.Subscribe("presence.leave.*", func(m *nats.Msg) {
		r.handleLeave(channelFromControlSubject(m.Subject), m.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe presence leaves: %w", err)
	}
	r.subs = append(r.subs, leaveSub)

	stateSub, err := nc.Subscribe("presence.state.*", func(m *nats.Msg) {
		if err := m.Respond(r.snapshot(channelFromControlSubject(m.Subject))); err != nil {
			r.logger.Warn("presence state reply failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe presence state: %w", err)
	}
	r.subs = append(r.subs, stateSub)

	return nil
}

// Stop unsubscribes the registry's control subscriptions.
func (r *PresenceRegistry) Stop() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

// Online returns the sorted member list of a presence channel.
func (r *PresenceRegistry) Online(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]string, 0, len(r.channels[channel]))
	for id := range r.channels[channel] {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

func (r *PresenceRegistry) handleJoin(channel string, data []byte) {
	var announce presenceAnnounce
	if err := json.Unmarshal(data, &announce); err != nil || announce.Member == "" {
		r.logger.Warn("dropping malformed presence join", zap.String("channel", channel))
		return
	}

	r.mu.Lock()
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]int)
		r.channels[channel] = members
	}
	members[announce.Member]++
	first := members[announce.Member] == 1
	total := len(members)
	r.mu.Unlock()

	if first {
		metrics.PresenceMembers.WithLabelValues(channel).Set(float64(total))
		payload, _ := json.Marshal(presenceMember{ID: announce.Member})
		if err := r.bus.Conn().Publish(eventSubject(channel, EventMemberAdded), payload); err != nil {
			r.logger.Warn("member_added broadcast failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}
}

func (r *PresenceRegistry) handleLeave(channel string, data []byte) {
	var announce presenceAnnounce
	if err := json.Unmarshal(data, &announce); err != nil || announce.Member == "" {
		r.logger.Warn("dropping malformed presence leave", zap.String("channel", channel))
		return
	}

	r.mu.Lock()
	members := r.channels[channel]
	if members == nil {
		r.mu.Unlock()
		return
	}
	members[announce.Member]--
	last := members[announce.Member] <= 0
	if last {
		delete(members, announce.Member)
	}
	total := len(members)
	r.mu.Unlock()

	if last {
		metrics.PresenceMembers.WithLabelValues(channel).Set(float64(total))
		payload, _ := json.Marshal(presenceMember{ID: announce.Member})
		if err := r.bus.Conn().Publish(eventSubject(channel, EventMemberRemoved), payload); err != nil {
			r.logger.Warn("member_removed broadcast failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}
}

func (r *PresenceRegistry) snapshot(channel string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := presenceSnapshot{Members: []presenceMember{}}
	for id := range r.channels[channel] {
		snap.Members = append(snap.Members, presenceMember{ID: id})
	}
	data, _ := json.Marshal(snap)
	return data
}

func channelFromControlSubject(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return subject
	}
	return unescapeToken(subject[idx+1:])
}
