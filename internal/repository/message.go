package repository

import (
	"context"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

type MessageRepository interface {
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindBySeq(ctx context.Context, sessionID, sender string, seq int) (*model.Message, error)
	// Create returns nil without error when the id, or a positive
	// (session, sender, seq), is already taken.
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	List(ctx context.Context, sessionID string, query model.MessageQuery) ([]model.Message, error)
	DeleteOlderThan(ctx context.Context, cutoff model.Millis) (int64, error)
}

type messageRepo struct {
	db database.DBTX
}

func (r *messageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		SELECT * FROM mpc_messages WHERE id = $1
	`, id)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) FindBySeq(ctx context.Context, sessionID, sender string, seq int) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		SELECT * FROM mpc_messages
		WHERE session_id = $1 AND sender = $2 AND seq = $3
		LIMIT 1
	`, sessionID, sender, seq)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO mpc_messages (id, session_id, sender, receiver, round, type, seq, envelope, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
		RETURNING *
	`, params.ID, params.SessionID, params.Sender, params.Receiver, params.Round,
		params.Type, params.Seq, params.Envelope, params.CreatedAt)
	return HandleNotFound(&msg, err)
}

func (r *messageRepo) List(ctx context.Context, sessionID string, query model.MessageQuery) ([]model.Message, error) {
	messages := []model.Message{}
	err := r.db.SelectContext(ctx, &messages, `
		SELECT * FROM mpc_messages
		WHERE session_id = $1
		AND ($2::bigint IS NULL OR created_at > $2)
		AND ($3::bigint IS NULL OR created_at >= $3)
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`, sessionID, query.After, query.Since, query.Limit)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepo) DeleteOlderThan(ctx context.Context, cutoff model.Millis) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM mpc_messages WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
