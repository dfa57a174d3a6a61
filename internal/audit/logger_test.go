package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/repository"
)

type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AuditLog, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditLog), args.Error(1)
}

func (m *mockAuditRepo) DeleteOlderThan(ctx context.Context, cutoff model.Millis) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func TestRecorder_Record(t *testing.T) {
	t.Run("persists row with defaults", func(t *testing.T) {
		repo := &mockAuditRepo{}
		repo.On("Create", mock.Anything, mock.MatchedBy(func(row *model.AuditLog) bool {
			var meta map[string]any
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				return false
			}
			return row.ID != "" &&
				row.Level == model.AuditLevelInfo &&
				row.Action == "participant-joined" &&
				row.Time == model.Millis(1_700_000_000_000) &&
				meta["participantId"] == "A"
		})).Return(nil).Once()

		rec := NewRecorder(repo)
		rec.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

		rec.Record(context.Background(), Entry{
			WalletID:  "wallet-1",
			SessionID: "s1",
			Action:    ActionParticipantJoined,
			Actor:     "0xabc",
			Message:   "participant joined",
			Metadata:  map[string]any{"participantId": "A", "deviceId": "d1"},
		})

		repo.AssertExpectations(t)
	})

	t.Run("empty metadata stored as object", func(t *testing.T) {
		repo := &mockAuditRepo{}
		repo.On("Create", mock.Anything, mock.MatchedBy(func(row *model.AuditLog) bool {
			return string(row.Metadata) == "{}"
		})).Return(nil).Once()

		NewRecorder(repo).Record(context.Background(), Entry{SessionID: "s1", Action: ActionSessionUpdated})
		repo.AssertExpectations(t)
	})

	t.Run("persistence failure is swallowed", func(t *testing.T) {
		repo := &mockAuditRepo{}
		repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

		assert.NotPanics(t, func() {
			NewRecorder(repo).Record(context.Background(), Entry{SessionID: "s1", Action: ActionMessageSent})
		})
		repo.AssertExpectations(t)
	})

	t.Run("panicking repository is contained", func(t *testing.T) {
		repo := &mockAuditRepo{}
		repo.On("Create", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			panic("driver bug")
		}).Return(nil).Once()

		assert.NotPanics(t, func() {
			NewRecorder(repo).Record(context.Background(), Entry{SessionID: "s1", Action: ActionMessageSent})
		})
	})

	t.Run("works against memory store", func(t *testing.T) {
		store := repository.NewMemoryStore()
		NewRecorder(store.AuditLogs()).Record(context.Background(), Entry{
			SessionID: "s1", Action: ActionSessionCreated, Message: "session created",
		})

		logs, err := store.AuditLogs().ListBySession(context.Background(), "s1", 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "session-created", logs[0].Action)
	})
}
