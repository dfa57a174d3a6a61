package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

func (f *fixture) signSession(t *testing.T) {
	t.Helper()
	input := threeParty("s1")
	input.Type = "sign"
	f.createSession(t, input)
	f.join(t, "s1", "A", addrA)
	f.join(t, "s1", "B", addrB)
}

func TestCreateSignRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("records a pending request", func(t *testing.T) {
		f := newFixture(t)
		f.signSession(t)
		log := f.watch("s1")

		req, err := f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{
			ID:          "r1",
			Initiator:   "A",
			PayloadType: "eth_sendTransaction",
			PayloadHash: "0xabc",
			ChainID:     1,
		}, addrA)
		require.NoError(t, err)

		assert.Equal(t, model.SignRequestStatusPending, req.Status)
		assert.Equal(t, "wallet-1", req.WalletID)
		assert.JSONEq(t, `[]`, string(req.Approvals))
		assert.Len(t, log.ofType(events.TypeSignRequest), 1)

		actions := f.auditActions(t, "s1")
		assert.Equal(t, string(audit.ActionSignRequestCreated), actions[len(actions)-1])
	})

	t.Run("only sign sessions", func(t *testing.T) {
		f := newFixture(t)
		f.readySession(t)
		_, err := f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{Initiator: "A", PayloadHash: "0xabc"}, addrA)
		assertCode(t, err, apperrors.ErrCodeInvalidSessionType)
	})

	t.Run("initiator must be joined and owned by the actor", func(t *testing.T) {
		f := newFixture(t)
		f.signSession(t)

		_, err := f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{Initiator: "C", PayloadHash: "0xabc"}, addrC)
		assertCode(t, err, apperrors.ErrCodeParticipantNotJoined)

		_, err = f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{Initiator: "A", PayloadHash: "0xabc"}, addrB)
		assertCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		f.signSession(t)

		_, err := f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{PayloadHash: "0xabc"}, addrA)
		assertCode(t, err, apperrors.ErrCodeMissingRequired)

		_, err = f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{
			Initiator: "A", PayloadHash: "0xabc", Approvals: model.Payload(`{"a":1}`),
		}, addrA)
		assertCode(t, err, apperrors.ErrCodeInvalidInput)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.signSession(t)

		input := CreateSignRequestInput{ID: "r1", Initiator: "A", PayloadHash: "0xabc"}
		_, err := f.signs.CreateSignRequest(ctx, "s1", input, addrA)
		require.NoError(t, err)
		_, err = f.signs.CreateSignRequest(ctx, "s1", input, addrA)
		assertCode(t, err, apperrors.ErrCodeConflict)
	})
}

func TestUpdateSignRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signSession(t)

	_, err := f.signs.CreateSignRequest(ctx, "s1", CreateSignRequestInput{ID: "r1", Initiator: "A", PayloadHash: "0xabc"}, addrA)
	require.NoError(t, err)

	t.Run("approves", func(t *testing.T) {
		updated, err := f.signs.UpdateSignRequest(ctx, "r1", UpdateSignRequestInput{
			Status:    model.SignRequestStatusApproved,
			Approvals: model.Payload(`["A","B"]`),
		}, addrB)
		require.NoError(t, err)
		assert.Equal(t, model.SignRequestStatusApproved, updated.Status)
		assert.JSONEq(t, `["A","B"]`, string(updated.Approvals))
	})

	t.Run("keeps omitted fields", func(t *testing.T) {
		updated, err := f.signs.UpdateSignRequest(ctx, "r1", UpdateSignRequestInput{Status: model.SignRequestStatusRejected}, addrA)
		require.NoError(t, err)
		assert.Equal(t, model.SignRequestStatusRejected, updated.Status)
		assert.JSONEq(t, `["A","B"]`, string(updated.Approvals))
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := f.signs.UpdateSignRequest(ctx, "r1", UpdateSignRequestInput{Status: "done"}, addrA)
		assertCode(t, err, apperrors.ErrCodeInvalidInput)
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		_, err := f.signs.UpdateSignRequest(ctx, "r1", UpdateSignRequestInput{Status: model.SignRequestStatusApproved}, addrC)
		assertCode(t, err, apperrors.ErrCodeForbidden)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.signs.UpdateSignRequest(ctx, "missing", UpdateSignRequestInput{Status: model.SignRequestStatusApproved}, addrA)
		assertCode(t, err, apperrors.ErrCodeNotFound)
	})

	t.Run("listed for members", func(t *testing.T) {
		list, err := f.signs.ListSignRequests(ctx, "s1", addrA)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "r1", list[0].ID)

		_, err = f.signs.ListSignRequests(ctx, "s1", addrC)
		assertCode(t, err, apperrors.ErrCodeForbidden)
	})
}
