package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/repository"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

type CreateSignRequestInput struct {
	ID          string
	Initiator   string
	PayloadType string
	PayloadHash string
	ChainID     int64
	Approvals   model.Payload
}

type UpdateSignRequestInput struct {
	Status    string
	Approvals model.Payload
}

// SignRequestService records signing requests raised inside sign sessions.
// Approval itself is decided by external collaborators.
type SignRequestService struct {
	coordinator
}

func NewSignRequestService(store repository.Store, recorder *audit.Recorder, bus events.Bus) *SignRequestService {
	return &SignRequestService{coordinator: newCoordinator(store, recorder, bus)}
}

func validSignRequestStatus(status string) bool {
	switch status {
	case model.SignRequestStatusPending, model.SignRequestStatusApproved, model.SignRequestStatusRejected:
		return true
	}
	return false
}

func validApprovals(p model.Payload) bool {
	var list []json.RawMessage
	return json.Unmarshal(p, &list) == nil
}

func (s *SignRequestService) CreateSignRequest(ctx context.Context, sessionID string, input CreateSignRequestInput, actor string) (*model.SignRequest, error) {
	input.Initiator = strings.TrimSpace(input.Initiator)
	input.PayloadType = strings.TrimSpace(input.PayloadType)
	input.PayloadHash = strings.TrimSpace(input.PayloadHash)
	if input.Initiator == "" {
		return nil, apperrors.MissingRequired("initiator")
	}
	if input.PayloadHash == "" {
		return nil, apperrors.MissingRequired("payloadHash")
	}
	if input.ID == "" {
		input.ID = util.NewID()
	}
	if !util.IsValidID(input.ID) {
		return nil, apperrors.InvalidInput("id", "must be 1-64 printable characters without spaces")
	}
	approvals := input.Approvals.OrDefault("[]")
	if !validApprovals(approvals) {
		return nil, apperrors.InvalidInput("approvals", "must be an array")
	}

	var (
		expired bool
		created *model.SignRequest
	)

	err := s.store.InSessionTx(ctx, sessionID, func(tx repository.Store, session *model.Session) error {
		if session == nil {
			return apperrors.SessionNotFound()
		}

		isExpired, err := s.expireIfDue(ctx, tx, session)
		if err != nil {
			return err
		}
		if isExpired {
			expired = true
			return nil
		}

		if session.Type != model.SessionTypeSign {
			return apperrors.InvalidSessionType()
		}

		initiator, err := tx.Participants().Find(ctx, sessionID, input.Initiator)
		if err != nil {
			return fmt.Errorf("find participant: %w", err)
		}
		if initiator == nil {
			return apperrors.ParticipantNotJoined()
		}
		if !util.IdentityMatches(initiator.Identity, actor) {
			return apperrors.Forbidden("Forbidden")
		}

		created, err = tx.SignRequests().Create(ctx, model.CreateSignRequestParams{
			ID:          input.ID,
			WalletID:    session.WalletID,
			SessionID:   sessionID,
			Initiator:   input.Initiator,
			PayloadType: input.PayloadType,
			PayloadHash: input.PayloadHash,
			ChainID:     input.ChainID,
			Status:      model.SignRequestStatusPending,
			Approvals:   approvals,
			CreatedAt:   model.MillisOf(s.now()),
		})
		if err != nil {
			return fmt.Errorf("create sign request: %w", err)
		}
		if created == nil {
			return apperrors.Conflict("Sign request already exists")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperrors.SessionExpired()
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("signRequestId", created.ID).
		Int64("chainId", created.ChainID).
		Msg("mpc sign request created")

	s.audit.Record(ctx, audit.Entry{
		WalletID:  created.WalletID,
		SessionID: sessionID,
		Action:    audit.ActionSignRequestCreated,
		Actor:     actor,
		Message:   "sign request created",
		Metadata: map[string]any{
			"signRequestId": created.ID,
			"initiator":     created.Initiator,
			"payloadType":   created.PayloadType,
			"payloadHash":   created.PayloadHash,
			"chainId":       created.ChainID,
		},
	})
	s.emit(ctx, sessionID, events.TypeSignRequest, created)

	return created, nil
}

func (s *SignRequestService) ListSignRequests(ctx context.Context, sessionID, actor string) ([]model.SignRequest, error) {
	if _, _, err := s.loadAuthorized(ctx, sessionID, actor); err != nil {
		return nil, err
	}
	requests, err := s.store.SignRequests().ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list sign requests: %w", err)
	}
	if requests == nil {
		requests = []model.SignRequest{}
	}
	return requests, nil
}

func (s *SignRequestService) UpdateSignRequest(ctx context.Context, id string, input UpdateSignRequestInput, actor string) (*model.SignRequest, error) {
	input.Status = strings.TrimSpace(input.Status)
	if input.Status != "" && !validSignRequestStatus(input.Status) {
		return nil, apperrors.InvalidInput("status", "must be pending, approved or rejected")
	}
	if len(input.Approvals) > 0 && !validApprovals(input.Approvals) {
		return nil, apperrors.InvalidInput("approvals", "must be an array")
	}

	current, err := s.store.SignRequests().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find sign request: %w", err)
	}
	if current == nil {
		return nil, apperrors.NotFound("Sign request")
	}

	var updated *model.SignRequest
	err = s.store.InSessionTx(ctx, current.SessionID, func(tx repository.Store, session *model.Session) error {
		if session == nil {
			return apperrors.SessionNotFound()
		}
		if _, err := s.authorize(ctx, tx, session.ID, actor); err != nil {
			return err
		}

		// Re-read under the session lock so concurrent updates apply in order.
		latest, err := tx.SignRequests().FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("find sign request: %w", err)
		}
		if latest == nil {
			return apperrors.NotFound("Sign request")
		}

		status := latest.Status
		if input.Status != "" {
			status = input.Status
		}
		approvals := latest.Approvals
		if len(input.Approvals) > 0 {
			approvals = input.Approvals
		}

		updated, err = tx.SignRequests().Update(ctx, id, status, approvals)
		if err != nil {
			return fmt.Errorf("update sign request: %w", err)
		}
		if updated == nil {
			return apperrors.NotFound("Sign request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		WalletID:  updated.WalletID,
		SessionID: updated.SessionID,
		Action:    audit.ActionSignRequestUpdated,
		Actor:     actor,
		Message:   "sign request updated",
		Metadata: map[string]any{
			"signRequestId": updated.ID,
			"status":        updated.Status,
		},
	})
	s.emit(ctx, updated.SessionID, events.TypeSignRequest, updated)

	return updated, nil
}
