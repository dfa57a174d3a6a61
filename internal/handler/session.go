package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/httputil"
	"github.com/openclaw/mpc-relay-go/internal/middleware"
	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/service"
)

type SessionHandler struct {
	sessionService     *service.SessionService
	messageService     *service.MessageService
	signRequestService *service.SignRequestService
}

func NewSessionHandler(
	sessionService *service.SessionService,
	messageService *service.MessageService,
	signRequestService *service.SignRequestService,
) *SessionHandler {
	return &SessionHandler{
		sessionService:     sessionService,
		messageService:     messageService,
		signRequestService: signRequestService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/{sessionId}", h.GetSession)
	r.Post("/sessions/{sessionId}/join", h.JoinSession)
	r.Post("/sessions/{sessionId}/messages", h.SendMessage)
	r.Get("/sessions/{sessionId}/messages", h.FetchMessages)
	r.Get("/sessions/{sessionId}/audit", h.AuditTrail)
	r.Post("/sessions/{sessionId}/sign-requests", h.CreateSignRequest)
	r.Get("/sessions/{sessionId}/sign-requests", h.ListSignRequests)
	r.Patch("/sign-requests/{requestId}", h.UpdateSignRequest)

	return r
}

// requireActor writes 401 and returns false when the request carries no
// authenticated wallet address.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := middleware.GetActor(r.Context())
	if actor == "" {
		httputil.WriteError(w, apperrors.Unauthorized("Missing access token"))
		return "", false
	}
	return actor, true
}

type createSessionRequest struct {
	ID           text       `json:"id"`
	SessionID    text       `json:"sessionId"`
	Type         text       `json:"type"`
	WalletID     text       `json:"walletId"`
	Threshold    number     `json:"threshold"`
	Participants stringList `json:"participants"`
	Curve        text       `json:"curve"`
	ExpiresAt    text       `json:"expiresAt"`
	KeyVersion   number     `json:"keyVersion"`
	ShareVersion number     `json:"shareVersion"`
}

// POST /sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	id := req.ID.trimmed()
	if id == "" {
		id = req.SessionID.trimmed()
	}

	keyVersion, err := req.KeyVersion.intField("keyVersion")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	shareVersion, err := req.ShareVersion.intField("shareVersion")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.sessionService.CreateSession(r.Context(), service.CreateSessionInput{
		ID:           id,
		Type:         req.Type.trimmed(),
		WalletID:     req.WalletID.trimmed(),
		Threshold:    req.Threshold.float(),
		Participants: req.Participants,
		Curve:        req.Curve.trimmed(),
		ExpiresAt:    string(req.ExpiresAt),
		KeyVersion:   keyVersion,
		ShareVersion: shareVersion,
	}, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, session)
}

// GET /sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	detail, err := h.sessionService.GetSession(r.Context(), chi.URLParam(r, "sessionId"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, detail)
}

type joinSessionRequest struct {
	ParticipantID    text `json:"participantId"`
	DeviceID         text `json:"deviceId"`
	Identity         text `json:"identity"`
	E2EPublicKey     text `json:"e2ePublicKey"`
	SigningPublicKey text `json:"signingPublicKey"`
}

// POST /sessions/{sessionId}/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req joinSessionRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.sessionService.JoinSession(r.Context(), chi.URLParam(r, "sessionId"), service.JoinSessionInput{
		ParticipantID:    req.ParticipantID.trimmed(),
		DeviceID:         req.DeviceID.trimmed(),
		Identity:         req.Identity.trimmed(),
		E2EPublicKey:     req.E2EPublicKey.trimmed(),
		SigningPublicKey: req.SigningPublicKey.trimmed(),
	}, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

type sendMessageRequest struct {
	ID       text          `json:"id"`
	From     text          `json:"from"`
	To       text          `json:"to"`
	Round    number        `json:"round"`
	Type     text          `json:"type"`
	Seq      number        `json:"seq"`
	Envelope model.Payload `json:"envelope"`
}

// decodeSendMessage accepts the message fields at the top level or
// wrapped as {"message": {...}}.
func decodeSendMessage(r *http.Request) (*sendMessageRequest, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.ValidationError("Invalid request body")
	}

	var wrapper struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil {
		if inner := bytes.TrimSpace(wrapper.Message); len(inner) > 0 && inner[0] == '{' {
			raw = inner
		}
	}

	var req sendMessageRequest
	if err := decodeRaw(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// POST /sessions/{sessionId}/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	req, err := decodeSendMessage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	round, err := req.Round.intField("round")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	seq, err := req.Seq.intField("seq")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	msg, err := h.messageService.SendMessage(r.Context(), chi.URLParam(r, "sessionId"), service.SendMessageInput{
		ID:       req.ID.trimmed(),
		From:     req.From.trimmed(),
		To:       req.To.trimmed(),
		Round:    round,
		Type:     req.Type.trimmed(),
		Seq:      seq,
		Envelope: req.Envelope,
	}, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, msg)
}

// GET /sessions/{sessionId}/messages?since=&cursor=&limit=
func (h *SessionHandler) FetchMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	page, err := h.messageService.FetchMessages(r.Context(), chi.URLParam(r, "sessionId"), actor, service.FetchMessagesParams{
		Since:  queryNumber(r, "since"),
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, page)
}

// GET /sessions/{sessionId}/audit?limit=
func (h *SessionHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	logs, err := h.sessionService.AuditTrail(r.Context(), chi.URLParam(r, "sessionId"), actor, queryInt(r, "limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, logs)
}
