package repository

import (
	"context"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Create inserts a session with status created and round 0. It returns
	// nil without error when a session with the same id already exists.
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// UpdateState sets status and raises round; round never decreases.
	UpdateState(ctx context.Context, id string, status model.SessionStatus, round int) error
	MarkExpired(ctx context.Context, id string) error
}

type sessionRepo struct {
	db database.DBTX
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM mpc_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) findForUpdate(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM mpc_sessions WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO mpc_sessions (
			id, type, wallet_id, threshold, participants, status, round,
			curve, key_version, share_version, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
		RETURNING *
	`, params.ID, params.Type, params.WalletID, params.Threshold, params.Participants,
		model.SessionStatusCreated, params.Curve, params.KeyVersion, params.ShareVersion,
		params.CreatedAt, params.ExpiresAt)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) UpdateState(ctx context.Context, id string, status model.SessionStatus, round int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mpc_sessions SET
			status = $2,
			round = GREATEST(round, $3)
		WHERE id = $1
	`, id, status, round)
	return err
}

func (r *sessionRepo) MarkExpired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mpc_sessions SET status = $2
		WHERE id = $1 AND status <> $2
	`, id, model.SessionStatusExpired)
	return err
}
