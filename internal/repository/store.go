package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

// SessionTxFunc runs with the session row locked. session is nil when the
// row does not exist. Returning an error rolls back every write made
// through tx.
type SessionTxFunc func(tx Store, session *model.Session) error

// Store groups the MPC repositories behind one handle so that services can
// scope a unit of work to a single session.
type Store interface {
	Sessions() SessionRepository
	Participants() ParticipantRepository
	Messages() MessageRepository
	SignRequests() SignRequestRepository
	AuditLogs() AuditLogRepository
	InSessionTx(ctx context.Context, sessionID string, fn SessionTxFunc) error
}

type pgStore struct {
	db           *sqlx.DB
	tx           *sqlx.Tx
	sessions     *sessionRepo
	participants *participantRepo
	messages     *messageRepo
	signRequests *signRequestRepo
	auditLogs    *auditLogRepo
}

// NewPostgresStore returns a Store backed by Postgres.
func NewPostgresStore(db *sqlx.DB) Store {
	return newPgStore(db, nil)
}

func newPgStore(db *sqlx.DB, tx *sqlx.Tx) *pgStore {
	var q database.DBTX = db
	if tx != nil {
		q = tx
	}
	return &pgStore{
		db:           db,
		tx:           tx,
		sessions:     &sessionRepo{db: q},
		participants: &participantRepo{db: q},
		messages:     &messageRepo{db: q},
		signRequests: &signRequestRepo{db: q},
		auditLogs:    &auditLogRepo{db: q},
	}
}

func (s *pgStore) Sessions() SessionRepository         { return s.sessions }
func (s *pgStore) Participants() ParticipantRepository { return s.participants }
func (s *pgStore) Messages() MessageRepository         { return s.messages }
func (s *pgStore) SignRequests() SignRequestRepository { return s.signRequests }
func (s *pgStore) AuditLogs() AuditLogRepository       { return s.auditLogs }

func (s *pgStore) InSessionTx(ctx context.Context, sessionID string, fn SessionTxFunc) error {
	if s.tx != nil {
		session, err := s.sessions.findForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		return fn(s, session)
	}

	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		txStore := newPgStore(s.db, tx)
		session, err := txStore.sessions.findForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		return fn(txStore, session)
	})
}
