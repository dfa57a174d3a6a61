package model

type AuditLog struct {
	ID        string  `db:"id" json:"id"`
	WalletID  string  `db:"wallet_id" json:"walletId"`
	SessionID string  `db:"session_id" json:"sessionId"`
	Level     string  `db:"level" json:"level"`
	Action    string  `db:"action" json:"action"`
	Actor     string  `db:"actor" json:"actor"`
	Message   string  `db:"message" json:"message"`
	Time      Millis  `db:"time" json:"time"`
	Metadata  Payload `db:"metadata" json:"metadata"`
}
