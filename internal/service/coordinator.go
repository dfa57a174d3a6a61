package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/repository"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

// coordinator holds the collaborators shared by the MPC services.
type coordinator struct {
	store repository.Store
	audit *audit.Recorder
	bus   events.Bus
	now   func() time.Time
}

func newCoordinator(store repository.Store, recorder *audit.Recorder, bus events.Bus) coordinator {
	return coordinator{store: store, audit: recorder, bus: bus, now: time.Now}
}

func (c *coordinator) emit(ctx context.Context, sessionID, eventType string, data any) {
	c.bus.Publish(ctx, sessionID, events.NewEvent(eventType, sessionID, data, c.now()))
}

func (c *coordinator) emitSessionUpdate(ctx context.Context, session *model.Session) {
	c.emit(ctx, session.ID, events.TypeSessionUpdate, map[string]any{
		"status": session.Status,
		"round":  session.Round,
	})
}

// loadAuthorized returns the session and its joined participants when the
// actor passes the access rule.
func (c *coordinator) loadAuthorized(ctx context.Context, sessionID, actor string) (*model.Session, []model.Participant, error) {
	session, err := c.store.Sessions().FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, nil, apperrors.SessionNotFound()
	}

	participants, err := c.authorize(ctx, c.store, sessionID, actor)
	if err != nil {
		return nil, nil, err
	}
	return session, participants, nil
}

// authorize admits the actor when no participant identity carries an
// address, or when one of them matches the actor.
func (c *coordinator) authorize(ctx context.Context, store repository.Store, sessionID, actor string) ([]model.Participant, error) {
	participants, err := store.Participants().ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	identities := make([]string, 0, len(participants))
	for _, p := range participants {
		identities = append(identities, p.Identity)
	}
	if !util.ActorHasAccess(identities, actor) {
		return nil, apperrors.Forbidden("Forbidden")
	}
	return participants, nil
}

// expireIfDue persists the expired status when the deadline has passed. It
// reports whether the session is expired.
func (c *coordinator) expireIfDue(ctx context.Context, tx repository.Store, session *model.Session) (bool, error) {
	if !session.IsExpired(c.now()) {
		return false, nil
	}
	if session.Status != model.SessionStatusExpired {
		if err := tx.Sessions().MarkExpired(ctx, session.ID); err != nil {
			return true, fmt.Errorf("mark session expired: %w", err)
		}
		session.Status = model.SessionStatusExpired
	}
	return true, nil
}
