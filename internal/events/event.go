package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TypeSessionUpdate     = "session-update"
	TypeParticipantJoined = "participant-joined"
	TypeMessage           = "message"
	TypeSignRequest       = "sign-request"
)

// Event is a session-scoped notification. Data is opaque to the bus.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Origin    string          `json:"origin,omitempty"`
	StreamID  string          `json:"streamId,omitempty"`
}

// Record is a stream entry and the event it carries.
type Record struct {
	ID    string
	Event Event
}

type Listener func(Event)

// Bus delivers session events to live subscribers.
type Bus interface {
	// Publish never fails the caller; delivery degrades toward local only.
	Publish(ctx context.Context, sessionID string, event Event)
	Subscribe(sessionID string, listener Listener) (unsubscribe func())
	// ReadBacklog returns stream entries strictly after cursor. It is empty
	// when streams are disabled.
	ReadBacklog(ctx context.Context, sessionID, cursor string, limit int64) ([]Record, error)
	// ReadStream blocks, calling onEvent per stream entry after startID,
	// until ctx is done. Read errors go to onError and the loop continues.
	ReadStream(ctx context.Context, sessionID, startID string, onEvent func(Record), onError func(error))
	StreamOnly() bool
	Close() error
}

// NewEvent builds an event; data that cannot be encoded becomes null.
func NewEvent(eventType, sessionID string, data any, now time.Time) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("mpc event data not serializable")
		raw = json.RawMessage("null")
	}
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      raw,
		Timestamp: now.UnixMilli(),
	}
}
