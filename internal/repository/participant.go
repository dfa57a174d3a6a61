package repository

import (
	"context"

	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/model"
)

type ParticipantRepository interface {
	Find(ctx context.Context, sessionID, participantID string) (*model.Participant, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error)
	// Create returns nil without error when the participant already joined.
	Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error)
}

const participantColumns = `
	session_id, participant_id, device_id, identity,
	e2e_public_key, signing_public_key, status, joined_at
`

type participantRepo struct {
	db database.DBTX
}

func (r *participantRepo) Find(ctx context.Context, sessionID, participantID string) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `
		SELECT `+participantColumns+` FROM mpc_session_participants
		WHERE session_id = $1 AND participant_id = $2
	`, sessionID, participantID)
	return HandleNotFound(&p, err)
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Participant, error) {
	participants := []model.Participant{}
	err := r.db.SelectContext(ctx, &participants, `
		SELECT `+participantColumns+` FROM mpc_session_participants
		WHERE session_id = $1
		ORDER BY joined_at ASC, participant_id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantRepo) Create(ctx context.Context, params model.CreateParticipantParams) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO mpc_session_participants (
			session_id, participant_id, device_id, identity,
			e2e_public_key, signing_public_key, status, joined_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, participant_id) DO NOTHING
		RETURNING `+participantColumns,
		params.SessionID, params.ParticipantID, params.DeviceID, params.Identity,
		params.E2EPublicKey, params.SigningPublicKey, model.ParticipantStatusActive, params.JoinedAt)
	return HandleNotFound(&p, err)
}
