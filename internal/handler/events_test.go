package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/middleware"
	"github.com/openclaw/mpc-relay-go/internal/service"
)

// streamBus is a stream-only bus with a fixed backlog. ReadStream emits
// its live records and then blocks until cancelled.
type streamBus struct {
	events.Bus

	backlog []events.Record
	live    []events.Record

	mu          sync.Mutex
	backlogFrom string
	streamFrom  string
}

func (b *streamBus) StreamOnly() bool { return true }

func (b *streamBus) ReadBacklog(_ context.Context, _ string, cursor string, _ int64) ([]events.Record, error) {
	b.mu.Lock()
	b.backlogFrom = cursor
	b.mu.Unlock()
	return b.backlog, nil
}

func (b *streamBus) ReadStream(ctx context.Context, _ string, startID string, onEvent func(events.Record), _ func(error)) {
	b.mu.Lock()
	b.streamFrom = startID
	b.mu.Unlock()
	for _, record := range b.live {
		onEvent(record)
	}
	<-ctx.Done()
}

func record(id, eventType string) events.Record {
	return events.Record{
		ID: id,
		Event: events.Event{
			Type:      eventType,
			SessionID: "s1",
			Data:      json.RawMessage(`{}`),
			StreamID:  id,
		},
	}
}

// serveFor runs the handler until the request context times out and
// returns the response.
func serveFor(t *testing.T, h http.Handler, target, actor string, d time.Duration, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	req = req.WithContext(middleware.WithActor(ctx, actor))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEventsHandler_Validation(t *testing.T) {
	s := newTestServer(t)
	s.createThreeParty(t, "s1", "keygen")
	s.join(t, "s1", "A", addrA)

	t.Run("requires sessionId", func(t *testing.T) {
		status, resp := s.do(t, http.MethodGet, "/ws", addrA, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Missing sessionId", resp.Message)
	})

	t.Run("requires access to the session", func(t *testing.T) {
		status, _ := s.do(t, http.MethodGet, "/ws?sessionId=s1", addrC, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("unknown session", func(t *testing.T) {
		status, _ := s.do(t, http.MethodGet, "/ws?sessionId=nope", addrA, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("requires an actor", func(t *testing.T) {
		status, _ := s.do(t, http.MethodGet, "/ws?sessionId=s1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestEventsHandler_LiveSubscription(t *testing.T) {
	s := newTestServer(t)
	s.createThreeParty(t, "s1", "keygen")
	s.join(t, "s1", "A", addrA)
	s.join(t, "s1", "B", addrB)

	store := s.store
	recorder := audit.NewRecorder(store.AuditLogs())
	messages := service.NewMessageService(store, recorder, s.bus)

	h := NewEventsHandler(s.sessions, s.bus)
	h.heartbeat = 20 * time.Millisecond

	go func() {
		if !waitFor(func() bool { return s.bus.ListenerCount("s1") == 1 }) {
			return
		}
		_, _ = messages.SendMessage(context.Background(), "s1", service.SendMessageInput{
			ID: "m1", From: "A", Type: "keygen-r1",
		}, addrA)
	}()

	rec := serveFor(t, h, "/ws?sessionId=s1", addrB, 300*time.Millisecond, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: connected\n"), body)
	assert.Contains(t, body, `"sessionId":"s1"`)
	assert.Contains(t, body, "event: message\n")
	assert.Contains(t, body, `"id":"m1"`)
	assert.Contains(t, body, "event: ping\n")
	assert.Less(t, strings.Index(body, "event: connected"), strings.Index(body, "event: message"))

	assert.Zero(t, s.bus.ListenerCount("s1"), "listener must be removed on disconnect")
}

func TestEventsHandler_StreamOnlyReplay(t *testing.T) {
	s := newTestServer(t)
	s.createThreeParty(t, "s1", "keygen")
	s.join(t, "s1", "A", addrA)

	bus := &streamBus{
		backlog: []events.Record{record("5-0", "message"), record("6-0", "session-update")},
		live:    []events.Record{record("7-0", "message")},
	}
	h := NewEventsHandler(s.sessions, bus)

	rec := serveFor(t, h, "/ws?sessionId=s1", addrA, 150*time.Millisecond, http.Header{
		"Last-Event-Id": []string{"4-0"},
	})
	body := rec.Body.String()

	assert.True(t, strings.HasPrefix(body, "id: 5-0\nevent: message\n"), body)
	assert.Contains(t, body, "id: 6-0\nevent: session-update\n")
	assert.Contains(t, body, "id: 7-0\nevent: message\n")
	assert.Less(t, strings.Index(body, "id: 6-0"), strings.Index(body, "event: connected"))
	assert.Less(t, strings.Index(body, "event: connected"), strings.Index(body, "id: 7-0"))

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, "4-0", bus.backlogFrom)
	assert.Equal(t, "6-0", bus.streamFrom, "live stream resumes after the replayed backlog")
}

func TestEventsHandler_StreamOnlyStartsAtTail(t *testing.T) {
	s := newTestServer(t)
	s.createThreeParty(t, "s1", "keygen")
	s.join(t, "s1", "A", addrA)

	bus := &streamBus{}
	h := NewEventsHandler(s.sessions, bus)

	serveFor(t, h, "/ws?sessionId=s1", addrA, 50*time.Millisecond, nil)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Empty(t, bus.backlogFrom, "no backlog without a cursor")
	assert.Equal(t, "$", bus.streamFrom)
}

func TestEventsHandler_CursorQuery(t *testing.T) {
	s := newTestServer(t)
	s.createThreeParty(t, "s1", "keygen")
	s.join(t, "s1", "A", addrA)

	bus := &streamBus{}
	h := NewEventsHandler(s.sessions, bus)

	serveFor(t, h, "/ws?sessionId=s1&cursor=9-1", addrA, 50*time.Millisecond, nil)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, "9-1", bus.backlogFrom)
	assert.Equal(t, "9-1", bus.streamFrom)
}

func TestWriteFrame(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, writeFrame(rec, rec, sseFrame{id: "1-0", event: "message", data: []byte(`{"a":1}`)}))
	require.NoError(t, writeFrame(rec, rec, sseFrame{event: "ping", data: []byte(`{}`)}))

	assert.Equal(t, "id: 1-0\nevent: message\ndata: {\"a\":1}\n\nevent: ping\ndata: {}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

var _ events.Bus = (*streamBus)(nil)
