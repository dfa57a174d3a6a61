package repository

import (
	"context"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff model.Millis) (int64, error)
}

type auditLogRepo struct {
	db database.DBTX
}

func (r *auditLogRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mpc_audit_logs (id, wallet_id, session_id, level, action, actor, message, time, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.WalletID, entry.SessionID, entry.Level, entry.Action,
		entry.Actor, entry.Message, entry.Time, entry.Metadata)
	return err
}

func (r *auditLogRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AuditLog, error) {
	logs := []model.AuditLog{}
	err := r.db.SelectContext(ctx, &logs, `
		SELECT * FROM mpc_audit_logs
		WHERE session_id = $1
		ORDER BY time ASC, id ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *auditLogRepo) DeleteOlderThan(ctx context.Context, cutoff model.Millis) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM mpc_audit_logs WHERE time < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
