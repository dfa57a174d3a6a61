package model

type Participant struct {
	SessionID        string `db:"session_id" json:"sessionId"`
	ParticipantID    string `db:"participant_id" json:"participantId"`
	DeviceID         string `db:"device_id" json:"deviceId"`
	Identity         string `db:"identity" json:"identity"`
	E2EPublicKey     string `db:"e2e_public_key" json:"e2ePublicKey"`
	SigningPublicKey string `db:"signing_public_key" json:"signingPublicKey"`
	Status           string `db:"status" json:"status"`
	JoinedAt         Millis `db:"joined_at" json:"joinedAt"`
}

type CreateParticipantParams struct {
	SessionID        string
	ParticipantID    string
	DeviceID         string
	Identity         string
	E2EPublicKey     string
	SigningPublicKey string
	JoinedAt         Millis
}
