package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

var _ Store = (*MemoryStore)(nil)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	_, err = db.Exec(`TRUNCATE mpc_sessions, mpc_session_participants, mpc_messages, mpc_sign_requests, mpc_audit_logs`)
	require.NoError(t, err)
	return db
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_LocksOnlyKnownSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 3; i++ {
		err := store.InSessionTx(ctx, fmt.Sprintf("missing-%d", i), func(tx Store, session *model.Session) error {
			assert.Nil(t, session)
			return nil
		})
		require.NoError(t, err)
	}
	assert.Empty(t, store.locks)

	createTestSession(t, store, "s1")
	require.NoError(t, store.InSessionTx(ctx, "s1", func(tx Store, session *model.Session) error {
		require.NotNil(t, session)
		return nil
	}))
	assert.Len(t, store.locks, 1)
}

func TestPostgresStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		db := setupTestDB(t)
		t.Cleanup(func() { db.Close() })
		return NewPostgresStore(db.DB)
	})
}

func createTestSession(t *testing.T, store Store, id string) *model.Session {
	t.Helper()

	session, err := store.Sessions().Create(context.Background(), model.CreateSessionParams{
		ID:           id,
		Type:         model.SessionTypeKeygen,
		WalletID:     "wallet-1",
		Threshold:    2,
		Participants: model.StringList{"A", "B", "C"},
		Curve:        model.DefaultCurve,
		CreatedAt:    model.MillisOf(time.Now()),
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("session create is first writer wins", func(t *testing.T) {
		store := newStore(t)
		created := createTestSession(t, store, "s1")
		assert.Equal(t, model.SessionStatusCreated, created.Status)
		assert.Equal(t, model.StringList{"A", "B", "C"}, created.Participants)

		dup, err := store.Sessions().Create(ctx, model.CreateSessionParams{
			ID: "s1", Type: model.SessionTypeSign, WalletID: "other", Threshold: 1,
			Participants: model.StringList{"Z"}, CreatedAt: 1,
		})
		require.NoError(t, err)
		assert.Nil(t, dup)

		found, err := store.Sessions().FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "wallet-1", found.WalletID)
	})

	t.Run("find missing session returns nil", func(t *testing.T) {
		store := newStore(t)
		found, err := store.Sessions().FindByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("update state never lowers round", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")

		require.NoError(t, store.Sessions().UpdateState(ctx, "s1", model.SessionStatusRounds, 3))
		require.NoError(t, store.Sessions().UpdateState(ctx, "s1", model.SessionStatusRounds, 1))

		found, err := store.Sessions().FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 3, found.Round)
		assert.Equal(t, model.SessionStatusRounds, found.Status)

		require.NoError(t, store.Sessions().MarkExpired(ctx, "s1"))
		found, err = store.Sessions().FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusExpired, found.Status)
	})

	t.Run("participant create is unique per session", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")
		params := model.CreateParticipantParams{
			SessionID: "s1", ParticipantID: "A", DeviceID: "d1",
			Identity: "did:key:a", E2EPublicKey: "pk", JoinedAt: 10,
		}

		p, err := store.Participants().Create(ctx, params)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, model.ParticipantStatusActive, p.Status)

		dup, err := store.Participants().Create(ctx, params)
		require.NoError(t, err)
		assert.Nil(t, dup)

		list, err := store.Participants().ListBySession(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		found, err := store.Participants().Find(ctx, "s1", "A")
		require.NoError(t, err)
		assert.Equal(t, "d1", found.DeviceID)
	})

	t.Run("message create dedupes by id and seq", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")
		params := model.CreateMessageParams{
			ID: "m1", SessionID: "s1", Sender: "A", Type: "round1",
			Seq: 1, Envelope: model.Payload(`{"x":1}`), CreatedAt: 100,
		}

		msg, err := store.Messages().Create(ctx, params)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, `{"x":1}`, string(msg.Envelope))

		dup, err := store.Messages().Create(ctx, params)
		require.NoError(t, err)
		assert.Nil(t, dup)

		params.ID = "m2"
		dup, err = store.Messages().Create(ctx, params)
		require.NoError(t, err)
		assert.Nil(t, dup, "same sender and positive seq")

		bySeq, err := store.Messages().FindBySeq(ctx, "s1", "A", 1)
		require.NoError(t, err)
		assert.Equal(t, "m1", bySeq.ID)

		params.Seq = 0
		params.ID = "m3"
		ok, err := store.Messages().Create(ctx, params)
		require.NoError(t, err)
		assert.NotNil(t, ok)
		params.ID = "m4"
		ok, err = store.Messages().Create(ctx, params)
		require.NoError(t, err)
		assert.NotNil(t, ok, "seq 0 is not unique")
	})

	t.Run("message list orders and bounds", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")
		for i, ts := range []model.Millis{300, 100, 200, 200} {
			_, err := store.Messages().Create(ctx, model.CreateMessageParams{
				ID: fmt.Sprintf("m%d", i), SessionID: "s1", Sender: "A", Type: "t",
				Envelope: model.Payload(`{}`), CreatedAt: ts,
			})
			require.NoError(t, err)
		}

		all, err := store.Messages().List(ctx, "s1", model.MessageQuery{Limit: 10})
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, m := range all {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, []string{"m1", "m2", "m3", "m0"}, ids)

		after := model.Millis(200)
		page, err := store.Messages().List(ctx, "s1", model.MessageQuery{After: &after, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "m0", page[0].ID)

		since := model.Millis(200)
		page, err = store.Messages().List(ctx, "s1", model.MessageQuery{Since: &since, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "m2", page[0].ID)

		deleted, err := store.Messages().DeleteOlderThan(ctx, 200)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})

	t.Run("sign requests and audit logs", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")

		req, err := store.SignRequests().Create(ctx, model.CreateSignRequestParams{
			ID: "r1", WalletID: "wallet-1", SessionID: "s1", Initiator: "A",
			PayloadType: "tx", PayloadHash: "0xabc", ChainID: 1,
			Status: model.SignRequestStatusPending, Approvals: model.Payload(`[]`), CreatedAt: 5,
		})
		require.NoError(t, err)
		require.NotNil(t, req)

		updated, err := store.SignRequests().Update(ctx, "r1", model.SignRequestStatusApproved, model.Payload(`["A"]`))
		require.NoError(t, err)
		assert.Equal(t, `["A"]`, string(updated.Approvals))

		list, err := store.SignRequests().ListBySession(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		for i, ts := range []model.Millis{10, 20} {
			require.NoError(t, store.AuditLogs().Create(ctx, &model.AuditLog{
				ID: fmt.Sprintf("a%d", i), WalletID: "wallet-1", SessionID: "s1",
				Level: model.AuditLevelInfo, Action: "x", Actor: "actor", Message: "m",
				Time: ts, Metadata: model.Payload(`{}`),
			}))
		}
		logs, err := store.AuditLogs().ListBySession(ctx, "s1", 10)
		require.NoError(t, err)
		assert.Len(t, logs, 2)

		deleted, err := store.AuditLogs().DeleteOlderThan(ctx, 15)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})

	t.Run("session tx exposes locked session", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")

		err := store.InSessionTx(ctx, "missing", func(tx Store, session *model.Session) error {
			assert.Nil(t, session)
			return nil
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 1; i <= 8; i++ {
			wg.Add(1)
			go func(round int) {
				defer wg.Done()
				_ = store.InSessionTx(ctx, "s1", func(tx Store, session *model.Session) error {
					next := session.Round
					if round > next {
						next = round
					}
					return tx.Sessions().UpdateState(ctx, "s1", model.SessionStatusRounds, next)
				})
			}(i)
		}
		wg.Wait()

		found, err := store.Sessions().FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 8, found.Round)
	})

	t.Run("session tx propagates fn error", func(t *testing.T) {
		store := newStore(t)
		createTestSession(t, store, "s1")
		boom := errors.New("boom")

		err := store.InSessionTx(ctx, "s1", func(tx Store, session *model.Session) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})
}
