package model

type SignRequest struct {
	ID          string  `db:"id" json:"id"`
	WalletID    string  `db:"wallet_id" json:"walletId"`
	SessionID   string  `db:"session_id" json:"sessionId"`
	Initiator   string  `db:"initiator" json:"initiator"`
	PayloadType string  `db:"payload_type" json:"payloadType"`
	PayloadHash string  `db:"payload_hash" json:"payloadHash"`
	ChainID     int64   `db:"chain_id" json:"chainId"`
	Status      string  `db:"status" json:"status"`
	Approvals   Payload `db:"approvals" json:"approvals"`
	CreatedAt   Millis  `db:"created_at" json:"createdAt"`
}

type CreateSignRequestParams struct {
	ID          string
	WalletID    string
	SessionID   string
	Initiator   string
	PayloadType string
	PayloadHash string
	ChainID     int64
	Status      string
	Approvals   Payload
	CreatedAt   Millis
}
