package model

type Message struct {
	ID        string  `db:"id" json:"id"`
	SessionID string  `db:"session_id" json:"sessionId"`
	Sender    string  `db:"sender" json:"sender"`
	Receiver  string  `db:"receiver" json:"receiver"`
	Round     int     `db:"round" json:"round"`
	Type      string  `db:"type" json:"type"`
	Seq       int     `db:"seq" json:"seq"`
	Envelope  Payload `db:"envelope" json:"envelope"`
	CreatedAt Millis  `db:"created_at" json:"createdAt"`
}

type CreateMessageParams struct {
	ID        string
	SessionID string
	Sender    string
	Receiver  string
	Round     int
	Type      string
	Seq       int
	Envelope  Payload
	CreatedAt Millis
}

// MessageQuery bounds a page of messages. After is exclusive, Since inclusive.
type MessageQuery struct {
	After *Millis
	Since *Millis
	Limit int
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *Millis   `json:"nextCursor,omitempty"`
}
