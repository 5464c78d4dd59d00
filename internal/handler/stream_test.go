package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-chat/messenger-platform/internal/model"
	"github.com/threadline-chat/messenger-platform/internal/transport"
)

// sseRecorder is a concurrency-safe ResponseWriter the test can read
// while the stream handler keeps writing.
type sseRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
	status int
}

func newSSERecorder() *sseRecorder {
	return &sseRecorder{header: make(http.Header)}
}

func (r *sseRecorder) Header() http.Header { return r.header }

func (r *sseRecorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *sseRecorder) Flush() {}

func (r *sseRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *sseRecorder) code() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func TestStreamRelaysConversationEvents(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createDirect(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID+"/stream", nil).WithContext(ctx)
	req = withSession(req, f.bob)

	rec := newSSERecorder()
	done := make(chan struct{})
	go func() {
		f.router.ServeHTTP(rec, req)
		close(done)
	}()

	// The subscription comes up asynchronously; publish until the event
	// shows on the wire.
	require.Eventually(t, func() bool {
		err := f.bus.Publish(ctx, transport.ConversationChannel(conv.ID), model.EventMessagesNew, model.NewMessageEvent{
			ID:     "m-stream",
			Sender: model.SenderSummary{ID: f.alice.ID, Email: f.alice.Email},
			Body:   "over the wire",
		})
		require.NoError(t, err)
		return strings.Contains(rec.body(), "event: messages:new")
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusOK, rec.code())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.body(), "over the wire")

	// Disconnect ends the handler and releases the subscription.
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not stop on client disconnect")
	}
}

func TestStreamRequiresMembership(t *testing.T) {
	f := newAPIFixture(t)
	conv := f.createDirect(t)

	w := f.do(t, f.carol, http.MethodGet, "/conversations/"+conv.ID+"/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
