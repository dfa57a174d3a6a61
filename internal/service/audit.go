package service

import (
	"context"
	"fmt"

	"github.com/openclaw/mpc-relay-go/internal/model"
)

// AuditTrail returns the session's audit entries, oldest first.
func (s *SessionService) AuditTrail(ctx context.Context, sessionID, actor string, limit *int) ([]model.AuditLog, error) {
	if _, _, err := s.loadAuthorized(ctx, sessionID, actor); err != nil {
		return nil, err
	}

	logs, err := s.store.AuditLogs().ListBySession(ctx, sessionID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
