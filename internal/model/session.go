package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type Session struct {
	ID           string        `db:"id" json:"id"`
	Type         SessionType   `db:"type" json:"type"`
	WalletID     string        `db:"wallet_id" json:"walletId"`
	Threshold    int           `db:"threshold" json:"threshold"`
	Participants StringList    `db:"participants" json:"participants"`
	Status       SessionStatus `db:"status" json:"status"`
	Round        int           `db:"round" json:"round"`
	Curve        string        `db:"curve" json:"curve"`
	KeyVersion   int           `db:"key_version" json:"keyVersion"`
	ShareVersion int           `db:"share_version" json:"shareVersion"`
	CreatedAt    Millis        `db:"created_at" json:"createdAt"`
	ExpiresAt    string        `db:"expires_at" json:"expiresAt"`
}

// IsExpired treats an empty, non-numeric or non-positive expiresAt as
// "never expires".
func (s *Session) IsExpired(now time.Time) bool {
	raw := strings.TrimSpace(s.ExpiresAt)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) || v <= 0 {
		return false
	}
	return float64(now.UnixMilli()) > v
}

// SessionDetail is a session plus its joined participants.
type SessionDetail struct {
	Session
	JoinedParticipants []Participant `json:"joinedParticipants"`
	JoinedCount        int           `json:"joinedCount"`
}

func NewSessionDetail(session *Session, participants []Participant) *SessionDetail {
	if participants == nil {
		participants = []Participant{}
	}
	return &SessionDetail{
		Session:            *session,
		JoinedParticipants: participants,
		JoinedCount:        len(participants),
	}
}

type CreateSessionParams struct {
	ID           string
	Type         SessionType
	WalletID     string
	Threshold    int
	Participants StringList
	Curve        string
	KeyVersion   int
	ShareVersion int
	CreatedAt    Millis
	ExpiresAt    string
}
