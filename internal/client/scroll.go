package client

// DefaultBottomThreshold is the bottom-proximity distance, in pixels,
// within which the viewer counts as being "at the bottom" of the view.
const DefaultBottomThreshold = 100

// ScrollTracker tracks whether the viewer is near the bottom of the open
// conversation and maintains the unseen-message badge: a new message
// auto-scrolls when the viewer is already near the bottom, and otherwise
// increments the badge, which resets on any return to the bottom.
type ScrollTracker struct {
	threshold float64
	distance  float64
	unseen    int
}

// NewScrollTracker creates a tracker with the given bottom-proximity
// threshold.
func NewScrollTracker(threshold float64) *ScrollTracker {
	return &ScrollTracker{threshold: threshold}
}

// SetPosition records the viewer's scroll position. Re-entering the
// bottom-proximity zone clears the unseen badge.
func (t *ScrollTracker) SetPosition(scrollHeight, scrollTop, clientHeight float64) {
	t.distance = scrollHeight - scrollTop - clientHeight
	if t.distance < 0 {
		t.distance = 0
	}
	if t.AtBottom() {
		t.unseen = 0
	}
}

// AtBottom reports whether the viewer is within the threshold of the
// bottom.
func (t *ScrollTracker) AtBottom() bool {
	return t.distance <= t.threshold
}

// OnNewMessage applies the arrival heuristic: when the viewer is near the
// bottom the view auto-scrolls and the badge stays clear; otherwise the
// badge grows. Returns true when the view should auto-scroll.
func (t *ScrollTracker) OnNewMessage() bool {
	if t.AtBottom() {
		t.distance = 0
		t.unseen = 0
		return true
	}
	t.unseen++
	return false
}

// ScrollToBottom records a manual scroll to the bottom, clearing the
// badge.
func (t *ScrollTracker) ScrollToBottom() {
	t.distance = 0
	t.unseen = 0
}

// Unseen returns the current unseen-message badge count.
func (t *ScrollTracker) Unseen() int {
	return t.unseen
}
