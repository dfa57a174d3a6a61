package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub is the in-process per-session listener table.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]Listener
	nextID    uint64
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[uint64]Listener)}
}

func (h *Hub) Subscribe(sessionID string, listener Listener) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.listeners[sessionID] == nil {
		h.listeners[sessionID] = make(map[uint64]Listener)
	}
	h.listeners[sessionID][id] = listener
	count := len(h.listeners[sessionID])
	h.mu.Unlock()

	log.Debug().
		Str("sessionId", sessionID).
		Int("listenerCount", count).
		Msg("mpc listener subscribed")

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if set, ok := h.listeners[sessionID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.listeners, sessionID)
				}
			}
		})
	}
}

// Deliver invokes every listener of the session. A panicking listener
// does not stop delivery to the others.
func (h *Hub) Deliver(sessionID string, event Event) {
	h.mu.RLock()
	set := h.listeners[sessionID]
	snapshot := make([]Listener, 0, len(set))
	for _, l := range set {
		snapshot = append(snapshot, l)
	}
	h.mu.RUnlock()

	for _, l := range snapshot {
		invoke(sessionID, l, event)
	}
}

func invoke(sessionID string, l Listener, event Event) {
	defer func() {
		if p := recover(); p != nil {
			log.Warn().
				Str("sessionId", sessionID).
				Interface("panic", p).
				Msg("mpc listener failed")
		}
	}()
	l(event)
}

func (h *Hub) ListenerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[sessionID])
}

// LocalBus is a Bus without a broker: every event is delivered in process.
type LocalBus struct {
	*Hub
	instanceID string
}

func NewLocalBus(instanceID string) *LocalBus {
	return &LocalBus{Hub: NewHub(), instanceID: instanceID}
}

func (b *LocalBus) Publish(_ context.Context, sessionID string, event Event) {
	event.SessionID = sessionID
	event.Origin = b.instanceID
	b.Deliver(sessionID, event)
}

func (b *LocalBus) ReadBacklog(context.Context, string, string, int64) ([]Record, error) {
	return nil, nil
}

func (b *LocalBus) ReadStream(context.Context, string, string, func(Record), func(error)) {}

func (b *LocalBus) StreamOnly() bool { return false }

func (b *LocalBus) Close() error { return nil }
