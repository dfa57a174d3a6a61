package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/repository"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 500
)

type SendMessageInput struct {
	ID       string
	From     string
	To       string
	Round    *int
	Type     string
	Seq      *int
	Envelope model.Payload
}

type FetchMessagesParams struct {
	// Since is an inclusive lower bound in epoch milliseconds.
	Since *float64
	// Cursor is either an exclusive epoch-millisecond bound or a message id.
	Cursor string
	Limit  *int
}

// MessageService relays protocol messages between joined participants.
type MessageService struct {
	coordinator
}

func NewMessageService(store repository.Store, recorder *audit.Recorder, bus events.Bus) *MessageService {
	return &MessageService{coordinator: newCoordinator(store, recorder, bus)}
}

// nextRoundState returns the session state after a message of the given
// round is accepted.
func nextRoundState(session *model.Session, round int) (model.SessionStatus, int) {
	status := session.Status
	if status.AcceptsRounds() {
		status = model.SessionStatusRounds
	}
	return status, max(session.Round, round)
}

func (s *MessageService) SendMessage(ctx context.Context, sessionID string, input SendMessageInput, actor string) (*model.Message, error) {
	input.From = strings.TrimSpace(input.From)
	input.Type = strings.TrimSpace(input.Type)
	if input.From == "" || input.Type == "" {
		return nil, apperrors.ValidationError("Missing message sender or type")
	}
	if input.ID == "" {
		input.ID = util.NewID()
	}
	if !util.IsValidID(input.ID) {
		return nil, apperrors.InvalidInput("id", "must be 1-64 printable characters without spaces")
	}

	params := model.CreateMessageParams{
		ID:        input.ID,
		SessionID: sessionID,
		Sender:    input.From,
		Receiver:  input.To,
		Type:      input.Type,
		Envelope:  input.Envelope.OrDefault("{}"),
	}
	if input.Round != nil {
		params.Round = *input.Round
	}
	if input.Seq != nil {
		params.Seq = *input.Seq
	}

	var (
		expired   bool
		duplicate bool
		message   *model.Message
		updated   *model.Session
		walletID  string
	)

	err := s.store.InSessionTx(ctx, sessionID, func(tx repository.Store, session *model.Session) error {
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

		sender, err := tx.Participants().Find(ctx, sessionID, params.Sender)
		if err != nil {
			return fmt.Errorf("find participant: %w", err)
		}
		if sender == nil {
			return apperrors.ParticipantNotJoined()
		}
		if !util.IdentityMatches(sender.Identity, actor) {
			return apperrors.Forbidden("Forbidden")
		}

		existing, err := s.findDuplicate(ctx, tx, params)
		if err != nil {
			return err
		}
		if existing != nil {
			message, duplicate = existing, true
			return nil
		}

		params.CreatedAt = model.MillisOf(s.now())
		created, err := tx.Messages().Create(ctx, params)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if created == nil {
			// Lost a race on a unique key.
			existing, err := s.findDuplicate(ctx, tx, params)
			if err != nil {
				return err
			}
			if existing == nil {
				return apperrors.Conflict("Message conflicts with an existing message")
			}
			message, duplicate = existing, true
			return nil
		}
		message = created

		status, round := nextRoundState(session, created.Round)
		if status != session.Status || round != session.Round {
			if err := tx.Sessions().UpdateState(ctx, sessionID, status, round); err != nil {
				return fmt.Errorf("update session state: %w", err)
			}
			session.Status, session.Round = status, round
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
	if duplicate {
		log.Debug().
			Str("sessionId", sessionID).
			Str("messageId", message.ID).
			Msg("mpc duplicate message ignored")
		return message, nil
	}

	s.audit.Record(ctx, audit.Entry{
		WalletID:  walletID,
		SessionID: sessionID,
		Action:    audit.ActionMessageSent,
		Actor:     actor,
		Message:   "message delivered",
		Metadata: map[string]any{
			"messageId": message.ID,
			"sender":    message.Sender,
			"round":     message.Round,
			"type":      message.Type,
		},
	})
	s.emit(ctx, sessionID, events.TypeMessage, message)

	if updated != nil {
		s.audit.Record(ctx, audit.Entry{
			WalletID:  walletID,
			SessionID: sessionID,
			Action:    audit.ActionSessionUpdated,
			Actor:     actor,
			Message:   "session updated",
			Metadata: map[string]any{
				"status": updated.Status,
				"round":  updated.Round,
			},
		})
		s.emitSessionUpdate(ctx, updated)
	}

	return message, nil
}

// findDuplicate resolves a retried send to the stored message, first by id
// and then by a positive (session, sender, seq).
func (s *MessageService) findDuplicate(ctx context.Context, tx repository.Store, params model.CreateMessageParams) (*model.Message, error) {
	byID, err := tx.Messages().FindByID(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	if byID != nil {
		if byID.SessionID != params.SessionID {
			return nil, apperrors.Conflict("Message id already used")
		}
		return byID, nil
	}

	if params.Seq <= 0 {
		return nil, nil
	}
	bySeq, err := tx.Messages().FindBySeq(ctx, params.SessionID, params.Sender, params.Seq)
	if err != nil {
		return nil, fmt.Errorf("find message by seq: %w", err)
	}
	return bySeq, nil
}

func (s *MessageService) FetchMessages(ctx context.Context, sessionID, actor string, params FetchMessagesParams) (*model.MessagePage, error) {
	if _, _, err := s.loadAuthorized(ctx, sessionID, actor); err != nil {
		return nil, err
	}

	query := model.MessageQuery{Limit: clampLimit(params.Limit)}

	if params.Since != nil {
		since := millisCeil(*params.Since)
		query.Since = &since
	}

	if cursor := strings.TrimSpace(params.Cursor); cursor != "" {
		if v, err := strconv.ParseFloat(cursor, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			after := millisFloor(v)
			query.After = &after
		} else {
			ref, err := s.store.Messages().FindByID(ctx, cursor)
			if err != nil {
				return nil, fmt.Errorf("resolve cursor: %w", err)
			}
			if ref != nil {
				after := ref.CreatedAt
				query.After = &after
			}
		}
	}

	messages, err := s.store.Messages().List(ctx, sessionID, query)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}

	page := &model.MessagePage{Messages: messages}
	// The cursor is an exclusive createdAt bound. Rows sharing the last
	// row's millisecond beyond the limit are not returned by the next page.
	if n := len(messages); n > 0 {
		next := messages[n-1].CreatedAt
		page.NextCursor = &next
	}
	return page, nil
}

func clampLimit(limit *int) int {
	if limit == nil {
		return defaultMessageLimit
	}
	return min(max(*limit, 1), maxMessageLimit)
}

// Timestamps are whole milliseconds, so an exclusive bound floors and an
// inclusive bound ceils without changing which rows match.
func millisFloor(v float64) model.Millis {
	return clampMillis(math.Floor(v))
}

func millisCeil(v float64) model.Millis {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return clampMillis(math.Ceil(v))
}

func clampMillis(v float64) model.Millis {
	switch {
	case v >= math.MaxInt64:
		return model.Millis(math.MaxInt64)
	case v <= math.MinInt64:
		return model.Millis(math.MinInt64)
	}
	return model.Millis(v)
}
