package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/openclaw/mpc-relay-go/internal/model"
)

// MemoryStore implements Store with in-process maps. It backs single-node
// deployments without DATABASE_URL and the service tests.
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]model.Session
	participants map[string][]model.Participant
	messages     map[string]model.Message
	signRequests map[string]model.SignRequest
	auditLogs    []model.AuditLog

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]model.Session),
		participants: make(map[string][]model.Participant),
		messages:     make(map[string]model.Message),
		signRequests: make(map[string]model.SignRequest),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Sessions() SessionRepository         { return memSessions{s} }
func (s *MemoryStore) Participants() ParticipantRepository { return memParticipants{s} }
func (s *MemoryStore) Messages() MessageRepository         { return memMessages{s} }
func (s *MemoryStore) SignRequests() SignRequestRepository { return memSignRequests{s} }
func (s *MemoryStore) AuditLogs() AuditLogRepository       { return memAuditLogs{s} }

// InSessionTx serializes callers per session. Writes are applied
// immediately; there is no rollback.
func (s *MemoryStore) InSessionTx(ctx context.Context, sessionID string, fn SessionTxFunc) error {
	lock := s.sessionLock(sessionID)
	if lock == nil {
		return fn(s, nil)
	}
	lock.Lock()
	defer lock.Unlock()

	session, err := s.Sessions().FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return fn(s, session)
}

// sessionLock returns nil for unknown sessions so that lookups of missing
// ids do not grow the lock table.
func (s *MemoryStore) sessionLock(sessionID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		s.mu.RLock()
		_, exists := s.sessions[sessionID]
		s.mu.RUnlock()
		if !exists {
			return nil
		}

		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

type memSessions struct{ s *MemoryStore }

func (r memSessions) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	session.Participants = append(model.StringList{}, session.Participants...)
	return &session, nil
}

func (r memSessions) Create(_ context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.sessions[params.ID]; exists {
		return nil, nil
	}
	session := model.Session{
		ID:           params.ID,
		Type:         params.Type,
		WalletID:     params.WalletID,
		Threshold:    params.Threshold,
		Participants: append(model.StringList{}, params.Participants...),
		Status:       model.SessionStatusCreated,
		Round:        0,
		Curve:        params.Curve,
		KeyVersion:   params.KeyVersion,
		ShareVersion: params.ShareVersion,
		CreatedAt:    params.CreatedAt,
		ExpiresAt:    params.ExpiresAt,
	}
	r.s.sessions[session.ID] = session
	out := session
	return &out, nil
}

func (r memSessions) UpdateState(_ context.Context, id string, status model.SessionStatus, round int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil
	}
	session.Status = status
	if round > session.Round {
		session.Round = round
	}
	r.s.sessions[id] = session
	return nil
}

func (r memSessions) MarkExpired(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if session, ok := r.s.sessions[id]; ok {
		session.Status = model.SessionStatusExpired
		r.s.sessions[id] = session
	}
	return nil
}

type memParticipants struct{ s *MemoryStore }

func (r memParticipants) Find(_ context.Context, sessionID, participantID string) (*model.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.participants[sessionID] {
		if p.ParticipantID == participantID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (r memParticipants) ListBySession(_ context.Context, sessionID string) ([]model.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return append([]model.Participant{}, r.s.participants[sessionID]...), nil
}

func (r memParticipants) Create(_ context.Context, params model.CreateParticipantParams) (*model.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.participants[params.SessionID] {
		if p.ParticipantID == params.ParticipantID {
			return nil, nil
		}
	}
	p := model.Participant{
		SessionID:        params.SessionID,
		ParticipantID:    params.ParticipantID,
		DeviceID:         params.DeviceID,
		Identity:         params.Identity,
		E2EPublicKey:     params.E2EPublicKey,
		SigningPublicKey: params.SigningPublicKey,
		Status:           model.ParticipantStatusActive,
		JoinedAt:         params.JoinedAt,
	}
	r.s.participants[params.SessionID] = append(r.s.participants[params.SessionID], p)
	return &p, nil
}

type memMessages struct{ s *MemoryStore }

func (r memMessages) FindByID(_ context.Context, id string) (*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	msg, ok := r.s.messages[id]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (r memMessages) FindBySeq(_ context.Context, sessionID, sender string, seq int) (*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.findBySeqLocked(sessionID, sender, seq), nil
}

func (r memMessages) findBySeqLocked(sessionID, sender string, seq int) *model.Message {
	for _, msg := range r.s.messages {
		if msg.SessionID == sessionID && msg.Sender == sender && msg.Seq == seq {
			out := msg
			return &out
		}
	}
	return nil
}

func (r memMessages) Create(_ context.Context, params model.CreateMessageParams) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.messages[params.ID]; exists {
		return nil, nil
	}
	if params.Seq > 0 && r.findBySeqLocked(params.SessionID, params.Sender, params.Seq) != nil {
		return nil, nil
	}
	msg := model.Message{
		ID:        params.ID,
		SessionID: params.SessionID,
		Sender:    params.Sender,
		Receiver:  params.Receiver,
		Round:     params.Round,
		Type:      params.Type,
		Seq:       params.Seq,
		Envelope:  append(model.Payload(nil), params.Envelope...),
		CreatedAt: params.CreatedAt,
	}
	r.s.messages[msg.ID] = msg
	return &msg, nil
}

func (r memMessages) List(_ context.Context, sessionID string, query model.MessageQuery) ([]model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []model.Message{}
	for _, msg := range r.s.messages {
		if msg.SessionID != sessionID {
			continue
		}
		if query.After != nil && msg.CreatedAt <= *query.After {
			continue
		}
		if query.Since != nil && msg.CreatedAt < *query.Since {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (r memMessages) DeleteOlderThan(_ context.Context, cutoff model.Millis) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var count int64
	for id, msg := range r.s.messages {
		if msg.CreatedAt < cutoff {
			delete(r.s.messages, id)
			count++
		}
	}
	return count, nil
}

type memSignRequests struct{ s *MemoryStore }

func (r memSignRequests) FindByID(_ context.Context, id string) (*model.SignRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	req, ok := r.s.signRequests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r memSignRequests) ListBySession(_ context.Context, sessionID string) ([]model.SignRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []model.SignRequest{}
	for _, req := range r.s.signRequests {
		if req.SessionID == sessionID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memSignRequests) Create(_ context.Context, params model.CreateSignRequestParams) (*model.SignRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.signRequests[params.ID]; exists {
		return nil, nil
	}
	req := model.SignRequest{
		ID:          params.ID,
		WalletID:    params.WalletID,
		SessionID:   params.SessionID,
		Initiator:   params.Initiator,
		PayloadType: params.PayloadType,
		PayloadHash: params.PayloadHash,
		ChainID:     params.ChainID,
		Status:      params.Status,
		Approvals:   append(model.Payload(nil), params.Approvals...),
		CreatedAt:   params.CreatedAt,
	}
	r.s.signRequests[req.ID] = req
	return &req, nil
}

func (r memSignRequests) Update(_ context.Context, id, status string, approvals model.Payload) (*model.SignRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.signRequests[id]
	if !ok {
		return nil, nil
	}
	req.Status = status
	req.Approvals = append(model.Payload(nil), approvals...)
	r.s.signRequests[id] = req
	return &req, nil
}

type memAuditLogs struct{ s *MemoryStore }

func (r memAuditLogs) Create(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.auditLogs = append(r.s.auditLogs, *entry)
	return nil
}

func (r memAuditLogs) ListBySession(_ context.Context, sessionID string, limit int) ([]model.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []model.AuditLog{}
	for _, entry := range r.s.auditLogs {
		if entry.SessionID != sessionID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r memAuditLogs) DeleteOlderThan(_ context.Context, cutoff model.Millis) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.auditLogs[:0]
	var count int64
	for _, entry := range r.s.auditLogs {
		if entry.Time < cutoff {
			count++
			continue
		}
		kept = append(kept, entry)
	}
	r.s.auditLogs = kept
	return count, nil
}
