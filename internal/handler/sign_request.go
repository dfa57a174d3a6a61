package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/mpc-relay-go/internal/httputil"
	"github.com/openclaw/mpc-relay-go/internal/model"
	"github.com/openclaw/mpc-relay-go/internal/service"
)

type createSignRequestRequest struct {
	ID          text          `json:"id"`
	Initiator   text          `json:"initiator"`
	PayloadType text          `json:"payloadType"`
	PayloadHash text          `json:"payloadHash"`
	ChainID     number        `json:"chainId"`
	Approvals   model.Payload `json:"approvals"`
}

// POST /sessions/{sessionId}/sign-requests
func (h *SessionHandler) CreateSignRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createSignRequestRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	chainID, err := req.ChainID.int64Field("chainId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.signRequestService.CreateSignRequest(r.Context(), chi.URLParam(r, "sessionId"), service.CreateSignRequestInput{
		ID:          req.ID.trimmed(),
		Initiator:   req.Initiator.trimmed(),
		PayloadType: req.PayloadType.trimmed(),
		PayloadHash: req.PayloadHash.trimmed(),
		ChainID:     chainID,
		Approvals:   req.Approvals,
	}, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, created)
}

// GET /sessions/{sessionId}/sign-requests
func (h *SessionHandler) ListSignRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	list, err := h.signRequestService.ListSignRequests(r.Context(), chi.URLParam(r, "sessionId"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, list)
}

type updateSignRequestRequest struct {
	Status    text          `json:"status"`
	Approvals model.Payload `json:"approvals"`
}

// PATCH /sign-requests/{requestId}
func (h *SessionHandler) UpdateSignRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req updateSignRequestRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := h.signRequestService.UpdateSignRequest(r.Context(), chi.URLParam(r, "requestId"), service.UpdateSignRequestInput{
		Status:    req.Status.trimmed(),
		Approvals: req.Approvals.OrDefault(""),
	}, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, updated)
}
