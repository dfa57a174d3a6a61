package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/repository"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

type Action string

const (
	ActionSessionCreated     Action = "session-created"
	ActionSessionUpdated     Action = "session-updated"
	ActionParticipantJoined  Action = "participant-joined"
	ActionMessageSent        Action = "message-sent"
	ActionSignRequestCreated Action = "sign-request-created"
	ActionSignRequestUpdated Action = "sign-request-updated"
)

type Entry struct {
	WalletID  string
	SessionID string
	Action    Action
	Actor     string
	Message   string
	Metadata  map[string]any
}

// Recorder appends audit rows. Record never fails the caller: persistence
// errors are logged and dropped.
type Recorder struct {
	repo repository.AuditLogRepository
	now  func() time.Time
}

func NewRecorder(repo repository.AuditLogRepository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, entry Entry) {
	metadata := model.Payload("{}")
	if len(entry.Metadata) > 0 {
		if b, err := json.Marshal(entry.Metadata); err == nil {
			metadata = b
		} else {
			log.Warn().Err(err).Str("action", string(entry.Action)).Msg("mpc audit metadata not serializable")
		}
	}

	row := &model.AuditLog{
		ID:        util.NewID(),
		WalletID:  entry.WalletID,
		SessionID: entry.SessionID,
		Level:     model.AuditLevelInfo,
		Action:    string(entry.Action),
		Actor:     entry.Actor,
		Message:   entry.Message,
		Time:      model.MillisOf(r.now()),
		Metadata:  metadata,
	}

	logEntry(entry)

	if err := r.persist(ctx, row); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", entry.SessionID).
			Str("action", string(entry.Action)).
			Msg("mpc audit log failed")
	}
}

func (r *Recorder) persist(ctx context.Context, row *model.AuditLog) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("mpc audit log panicked")
		}
	}()
	return r.repo.Create(ctx, row)
}

func logEntry(entry Entry) {
	logger := log.With().
		Str("audit", "mpc").
		Str("action", string(entry.Action)).
		Str("sessionId", entry.SessionID).
		Logger()

	if entry.WalletID != "" {
		logger = logger.With().Str("walletId", entry.WalletID).Logger()
	}
	if entry.Actor != "" {
		logger = logger.With().Str("actor", entry.Actor).Logger()
	}

	logEvent := logger.Info()
	for k, v := range entry.Metadata {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg(entry.Message)
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
