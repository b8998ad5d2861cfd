package handlers

import (
	"context"
	"net/http"

	"medops-bknd/internal/models"
	"medops-bknd/internal/services"
	"medops-bknd/internal/session"
	"medops-bknd/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransferHandler struct {
	service *services.TransferService
	logr    *zap.Logger
}

func NewTransferHandler(svc *services.TransferService, logr *zap.Logger) *TransferHandler {
	return &TransferHandler{service: svc, logr: logr}
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	t, err := h.service.Create(r.Context(), req, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, h.logr, "failed to create transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GET /transfers?status=pending,accepted&hospital_id=&limit=
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := queryUUID(r, "hospital_id")
	if err != nil {
		writeError(w, h.logr, "invalid hospital_id", err)
		return
	}
	ts, err := h.service.List(r.Context(), services.TransferFilter{
		Statuses:   utils.ParseQueryList(r.URL.Query(), "status"),
		HospitalID: hospitalID,
		Limit:      queryInt(r, "limit"),
	})
	if err != nil {
		writeError(w, h.logr, "failed to list transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ts})
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logr, "failed to fetch transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type transferStep func(ctx context.Context, id uuid.UUID, actor string) (*models.TransferRequest, error)

func (h *TransferHandler) step(w http.ResponseWriter, r *http.Request, fn transferStep) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	t, err := fn(r.Context(), id, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, h.logr, "failed to update transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TransferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Accept)
}

func (h *TransferHandler) StartTransit(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.StartTransit)
}

func (h *TransferHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Complete)
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.service.Cancel)
}

type rejectReq struct {
	Reason string `json:"reason"`
}

func (h *TransferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	h.step(w, r, func(ctx context.Context, id uuid.UUID, actor string) (*models.TransferRequest, error) {
		return h.service.Reject(ctx, id, req.Reason, actor)
	})
}
