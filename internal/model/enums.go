package model

type SessionType string

const (
	SessionTypeKeygen  SessionType = "keygen"
	SessionTypeSign    SessionType = "sign"
	SessionTypeRefresh SessionType = "refresh"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeKeygen, SessionTypeSign, SessionTypeRefresh:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionStatusCreated SessionStatus = "created"
	SessionStatusInvited SessionStatus = "invited"
	SessionStatusReady   SessionStatus = "ready"
	SessionStatusRounds  SessionStatus = "rounds"
	SessionStatusExpired SessionStatus = "expired"
)

// AcceptsRounds reports whether a message may move the session into rounds.
func (s SessionStatus) AcceptsRounds() bool {
	switch s {
	case SessionStatusCreated, SessionStatusInvited, SessionStatusReady:
		return true
	}
	return false
}

const ParticipantStatusActive = "active"

const (
	SignRequestStatusPending  = "pending"
	SignRequestStatusApproved = "approved"
	SignRequestStatusRejected = "rejected"
)

const AuditLevelInfo = "info"

const DefaultCurve = "secp256k1"
