package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/repository"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

type CreateSessionInput struct {
	ID           string
	Type         string
	WalletID     string
	Threshold    float64
	Participants []string
	Curve        string
	ExpiresAt    string
	KeyVersion   *int
	ShareVersion *int
}

type JoinSessionInput struct {
	ParticipantID    string
	DeviceID         string
	Identity         string
	E2EPublicKey     string
	SigningPublicKey string
}

type JoinResult struct {
	Participant *model.Participant   `json:"participant"`
	Session     *model.SessionDetail `json:"session"`
}

// SessionService owns the session lifecycle: creation, lookup and the
// join quorum.
type SessionService struct {
	coordinator
}

func NewSessionService(store repository.Store, recorder *audit.Recorder, bus events.Bus) *SessionService {
	return &SessionService{coordinator: newCoordinator(store, recorder, bus)}
}

func validateCreateSession(input CreateSessionInput) error {
	if !model.SessionType(input.Type).Valid() {
		return apperrors.InvalidSessionType()
	}
	if strings.TrimSpace(input.WalletID) == "" {
		return apperrors.MissingWalletID()
	}
	t := input.Threshold
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 || t != math.Trunc(t) {
		return apperrors.InvalidThreshold()
	}
	if len(input.Participants) == 0 {
		return apperrors.MissingParticipants()
	}
	if t > float64(len(input.Participants)) {
		return apperrors.ThresholdExceedsParticipants()
	}
	if input.ID != "" && !util.IsValidID(input.ID) {
		return apperrors.InvalidInput("id", "must be 1-64 printable characters without spaces")
	}
	return nil
}

func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput, actor string) (*model.Session, error) {
	if err := validateCreateSession(input); err != nil {
		return nil, err
	}

	params := model.CreateSessionParams{
		ID:           input.ID,
		Type:         model.SessionType(input.Type),
		WalletID:     strings.TrimSpace(input.WalletID),
		Threshold:    int(input.Threshold),
		Participants: model.StringList(input.Participants),
		Curve:        strings.TrimSpace(input.Curve),
		CreatedAt:    model.MillisOf(s.now()),
		ExpiresAt:    strings.TrimSpace(input.ExpiresAt),
	}
	if params.ID == "" {
		params.ID = util.NewID()
	}
	if params.Curve == "" {
		params.Curve = model.DefaultCurve
	}
	if input.KeyVersion != nil {
		params.KeyVersion = *input.KeyVersion
	}
	if input.ShareVersion != nil {
		params.ShareVersion = *input.ShareVersion
	}

	session, err := s.store.Sessions().Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session == nil {
		return nil, apperrors.SessionExists()
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("type", string(session.Type)).
		Int("threshold", session.Threshold).
		Msg("mpc session created")

	s.audit.Record(ctx, audit.Entry{
		WalletID:  session.WalletID,
		SessionID: session.ID,
		Action:    audit.ActionSessionCreated,
		Actor:     actor,
		Message:   "session created",
		Metadata: map[string]any{
			"type":         session.Type,
			"threshold":    session.Threshold,
			"participants": session.Participants,
		},
	})
	s.emitSessionUpdate(ctx, session)

	return session, nil
}

func (s *SessionService) GetSession(ctx context.Context, id, actor string) (*model.SessionDetail, error) {
	session, participants, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return model.NewSessionDetail(session, participants), nil
}

// nextJoinStatus applies the join transitions: the first join invites, and
// reaching the threshold makes the session ready.
func nextJoinStatus(current model.SessionStatus, joined, threshold int) model.SessionStatus {
	next := current
	if next == model.SessionStatusCreated {
		next = model.SessionStatusInvited
	}
	if joined >= threshold {
		next = model.SessionStatusReady
	}
	return next
}

func validateJoin(input JoinSessionInput) error {
	if input.ParticipantID == "" || input.DeviceID == "" || input.Identity == "" || input.E2EPublicKey == "" {
		return apperrors.ValidationError("Missing participant info")
	}
	return nil
}

func (s *SessionService) JoinSession(ctx context.Context, id string, input JoinSessionInput, actor string) (*JoinResult, error) {
	input.ParticipantID = strings.TrimSpace(input.ParticipantID)
	input.DeviceID = strings.TrimSpace(input.DeviceID)
	input.Identity = strings.TrimSpace(input.Identity)
	input.E2EPublicKey = strings.TrimSpace(input.E2EPublicKey)
	input.SigningPublicKey = strings.TrimSpace(input.SigningPublicKey)
	if err := validateJoin(input); err != nil {
		return nil, err
	}

	var (
		expired     bool
		rejoined    bool
		participant *model.Participant
		updated     *model.Session
		walletID    string
	)

	err := s.store.InSessionTx(ctx, id, func(tx repository.Store, session *model.Session) error {
		if session == nil {
			return apperrors.SessionNotFound()
		}
		walletID = session.WalletID

		isExpired, err := s.expireIfDue(ctx, tx, session)
		if err != nil {
			return err
		}
		if isExpired {
			expired = true
			return nil
		}

		if len(session.Participants) > 0 && !session.Participants.Contains(input.ParticipantID) {
			return apperrors.ParticipantNotAllowed()
		}
		if !util.IdentityMatches(input.Identity, actor) {
			return apperrors.IdentityMismatch()
		}

		existing, err := tx.Participants().Find(ctx, id, input.ParticipantID)
		if err != nil {
			return fmt.Errorf("find participant: %w", err)
		}
		if existing != nil {
			if !util.IdentityMatches(existing.Identity, actor) {
				return apperrors.Forbidden("Forbidden")
			}
			participant = existing
			rejoined = true
			return nil
		}

		created, err := tx.Participants().Create(ctx, model.CreateParticipantParams{
			SessionID:        id,
			ParticipantID:    input.ParticipantID,
			DeviceID:         input.DeviceID,
			Identity:         input.Identity,
			E2EPublicKey:     input.E2EPublicKey,
			SigningPublicKey: input.SigningPublicKey,
			JoinedAt:         model.MillisOf(s.now()),
		})
		if err != nil {
			return fmt.Errorf("create participant: %w", err)
		}
		if created == nil {
			return apperrors.Conflict("Participant already joined")
		}
		participant = created

		joined, err := tx.Participants().ListBySession(ctx, id)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}

		next := nextJoinStatus(session.Status, len(joined), session.Threshold)
		if next != session.Status {
			if err := tx.Sessions().UpdateState(ctx, id, next, session.Round); err != nil {
				return fmt.Errorf("update session status: %w", err)
			}
			session.Status = next
			updated = session
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperrors.SessionExpired()
	}

	if !rejoined {
		log.Info().
			Str("sessionId", id).
			Str("participantId", participant.ParticipantID).
			Msg("mpc participant joined")

		s.audit.Record(ctx, audit.Entry{
			WalletID:  walletID,
			SessionID: id,
			Action:    audit.ActionParticipantJoined,
			Actor:     actor,
			Message:   "participant joined",
			Metadata: map[string]any{
				"participantId": participant.ParticipantID,
				"deviceId":      participant.DeviceID,
			},
		})
		s.emit(ctx, id, events.TypeParticipantJoined, map[string]any{
			"participantId": participant.ParticipantID,
			"deviceId":      participant.DeviceID,
		})
		if updated != nil {
			s.emitSessionUpdate(ctx, updated)
		}
	}

	detail, err := s.GetSession(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return &JoinResult{Participant: participant, Session: detail}, nil
}
