package client

import "sort"

// PresenceState is the lifecycle state of the presence subscription.
type PresenceState int

const (
	// PresenceUnsubscribed means no presence subscription exists.
	PresenceUnsubscribed PresenceState = iota
	// PresencePending means the subscription is awaiting its initial
	// membership snapshot.
	PresencePending
	// PresenceActive means the snapshot arrived and incremental events
	// are being applied.
	PresenceActive
)

// PresenceTracker mirrors presence-channel membership into a local set of
// online user handles. It is owned by a single Session loop.
//
// Lifecycle: Subscribe moves to Pending; the subscription_succeeded
// snapshot replaces the set wholesale and activates the tracker;
// member_added and member_removed mutate the set incrementally; and
// Unsubscribe clears everything.
type PresenceTracker struct {
	state   PresenceState
	members map[string]struct{}
}

// NewPresenceTracker creates an unsubscribed tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{members: make(map[string]struct{})}
}

// State returns the tracker's lifecycle state.
func (t *PresenceTracker) State() PresenceState {
	return t.state
}

// Subscribe marks the subscription as awaiting its snapshot.
func (t *PresenceTracker) Subscribe() {
	if t.state == PresenceUnsubscribed {
		t.state = PresencePending
	}
}

// ApplySnapshot replaces the member set wholesale and activates the
// tracker. Any state accumulated before the snapshot is discarded.
func (t *PresenceTracker) ApplySnapshot(ids []string) {
	t.members = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		t.members[id] = struct{}{}
	}
	t.state = PresenceActive
}

// ApplyAdded adds a member. Adding a present member is a no-op; events
// arriving before the snapshot are ignored, as the snapshot supersedes
// them.
func (t *PresenceTracker) ApplyAdded(id string) {
	if t.state != PresenceActive {
		return
	}
	t.members[id] = struct{}{}
}

// ApplyRemoved removes a member. Removing an absent member is a no-op.
func (t *PresenceTracker) ApplyRemoved(id string) {
	if t.state != PresenceActive {
		return
	}
	delete(t.members, id)
}

// Unsubscribe clears the tracker back to its initial state.
func (t *PresenceTracker) Unsubscribe() {
	t.state = PresenceUnsubscribed
	t.members = make(map[string]struct{})
}

// IsOnline reports whether the user with the given handle is present.
func (t *PresenceTracker) IsOnline(id string) bool {
	_, ok := t.members[id]
	return ok
}

// Members returns the sorted member handles.
func (t *PresenceTracker) Members() []string {
	out := make([]string, 0, len(t.members))
	for id := range t.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
