package repository

import (
	"context"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

type SignRequestRepository interface {
	FindByID(ctx context.Context, id string) (*model.SignRequest, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.SignRequest, error)
	// Create returns nil without error when the id is already taken.
	Create(ctx context.Context, params model.CreateSignRequestParams) (*model.SignRequest, error)
	Update(ctx context.Context, id, status string, approvals model.Payload) (*model.SignRequest, error)
}

type signRequestRepo struct {
	db database.DBTX
}

func (r *signRequestRepo) FindByID(ctx context.Context, id string) (*model.SignRequest, error) {
	var req model.SignRequest
	err := r.db.GetContext(ctx, &req, `
		SELECT * FROM mpc_sign_requests WHERE id = $1
	`, id)
	return HandleNotFound(&req, err)
}

func (r *signRequestRepo) ListBySession(ctx context.Context, sessionID string) ([]model.SignRequest, error) {
	requests := []model.SignRequest{}
	err := r.db.SelectContext(ctx, &requests, `
		SELECT * FROM mpc_sign_requests
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *signRequestRepo) Create(ctx context.Context, params model.CreateSignRequestParams) (*model.SignRequest, error) {
	var req model.SignRequest
	err := r.db.GetContext(ctx, &req, `
		INSERT INTO mpc_sign_requests (
			id, wallet_id, session_id, initiator, payload_type,
			payload_hash, chain_id, status, approvals, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING *
	`, params.ID, params.WalletID, params.SessionID, params.Initiator, params.PayloadType,
		params.PayloadHash, params.ChainID, params.Status, params.Approvals, params.CreatedAt)
	return HandleNotFound(&req, err)
}

func (r *signRequestRepo) Update(ctx context.Context, id, status string, approvals model.Payload) (*model.SignRequest, error) {
	var req model.SignRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE mpc_sign_requests SET
			status = $2,
			approvals = $3
		WHERE id = $1
		RETURNING *
	`, id, status, approvals)
	return HandleNotFound(&req, err)
}
