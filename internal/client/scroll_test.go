package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrollTrackerAutoScrollNearBottom(t *testing.T) {
	s := NewScrollTracker(100)

	// 80px from the bottom counts as at-bottom.
	s.SetPosition(1000, 520, 400)
	require.True(t, s.AtBottom())
	assert.True(t, s.OnNewMessage())
	assert.Zero(t, s.Unseen())
}

func TestScrollTrackerBadgeAwayFromBottom(t *testing.T) {
	s := NewScrollTracker(100)

	s.SetPosition(2000, 200, 400)
	require.False(t, s.AtBottom())

	assert.False(t, s.OnNewMessage())
	assert.False(t, s.OnNewMessage())
	assert.Equal(t, 2, s.Unseen())
}

func TestScrollTrackerBadgeClearsOnBottomReentry(t *testing.T) {
	s := NewScrollTracker(100)
	s.SetPosition(2000, 200, 400)
	s.OnNewMessage()
	s.OnNewMessage()
	require.Equal(t, 2, s.Unseen())

	s.SetPosition(2000, 1550, 400)
	require.True(t, s.AtBottom())
	assert.Zero(t, s.Unseen())
}

func TestScrollTrackerScrollToBottomClearsBadge(t *testing.T) {
	s := NewScrollTracker(100)
	s.SetPosition(2000, 200, 400)
	s.OnNewMessage()
	require.Equal(t, 1, s.Unseen())

	s.ScrollToBottom()
	assert.Zero(t, s.Unseen())
	assert.True(t, s.AtBottom())
}
