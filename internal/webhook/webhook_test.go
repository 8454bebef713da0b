package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/pkg/events"
)

type capturedRequest struct {
	path string
	body []byte
}

func newCapturingServer(t *testing.T) (*httptest.Server, *[]capturedRequest, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var received []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, capturedRequest{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &received, &mu
}

func TestEnqueueFlushesImmediatelyWhenBufferFull(t *testing.T) {
	srv, received, mu := newCapturingServer(t)
	sub := New(Spec{BaseURL: srv.URL, EventBufferSize: 2}, nil)

	sub.Enqueue(events.MessageEvent{Base: events.NewBase(events.SourceUser), Role: events.RoleUser})
	sub.Enqueue(events.MessageEvent{Base: events.NewBase(events.SourceUser), Role: events.RoleUser})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "/events", (*received)[0].path)
}

func TestEnqueueFlushesAfterIdleDelay(t *testing.T) {
	srv, received, mu := newCapturingServer(t)
	sub := New(Spec{BaseURL: srv.URL, EventBufferSize: 10, FlushDelaySecs: 0.02}, nil)

	sub.Enqueue(events.MessageEvent{Base: events.NewBase(events.SourceUser), Role: events.RoleUser})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*received) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotifyConversationPostsToConversationsPath(t *testing.T) {
	srv, received, mu := newCapturingServer(t)
	sub := New(Spec{BaseURL: srv.URL}, nil)

	err := sub.NotifyConversation(context.Background(), ConversationInfo{
		Conversation: events.Conversation{ID: "conv-1"},
		Action:       "created",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *received, 1)
	require.Equal(t, "/conversations", (*received)[0].path)

	var decoded ConversationInfo
	require.NoError(t, json.Unmarshal((*received)[0].body, &decoded))
	require.Equal(t, "conv-1", decoded.Conversation.ID)
	require.Equal(t, "created", decoded.Action)
}

func TestPostWithRetryExhaustsAndReturnsError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub := New(Spec{BaseURL: srv.URL, NumRetries: 2, RetryDelaySecs: 0.001}, nil)
	err := sub.NotifyConversation(context.Background(), ConversationInfo{Action: "created"})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestCloseFlushesRemainingQueue(t *testing.T) {
	srv, received, mu := newCapturingServer(t)
	sub := New(Spec{BaseURL: srv.URL, EventBufferSize: 10, FlushDelaySecs: 60}, nil)

	sub.Enqueue(events.MessageEvent{Base: events.NewBase(events.SourceUser), Role: events.RoleUser})
	require.NoError(t, sub.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *received, 1)
}

func TestEnqueueAfterCloseIsNoOp(t *testing.T) {
	srv, received, mu := newCapturingServer(t)
	sub := New(Spec{BaseURL: srv.URL}, nil)
	require.NoError(t, sub.Close())

	sub.Enqueue(events.MessageEvent{Base: events.NewBase(events.SourceUser), Role: events.RoleUser})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, *received)
}
