package handlers

import (
	"net/http"

	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"
	"medops-bknd/internal/services"
	"medops-bknd/internal/session"

	"go.uber.org/zap"
)

// LiveRanker ranks destinations from in-memory hospital state.
type LiveRanker interface {
	Recommend(lat, lng float64) []scoring.ScoredCandidate
}

type DispatchHandler struct {
	service *services.DispatchService
	live    LiveRanker
	logr    *zap.Logger
}

// NewDispatchHandler builds the handler. live may be nil, in which case
// rankings are computed from the store.
func NewDispatchHandler(svc *services.DispatchService, live LiveRanker, logr *zap.Logger) *DispatchHandler {
	return &DispatchHandler{service: svc, live: live, logr: logr}
}

func (h *DispatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateDispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	d, err := h.service.Create(r.Context(), req, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, h.logr, "failed to create dispatch", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GET /dispatches?active=true&limit=
func (h *DispatchHandler) List(w http.ResponseWriter, r *http.Request) {
	ds, err := h.service.List(r.Context(), queryBool(r, "active"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logr, "failed to list dispatches", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ds})
}

func (h *DispatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logr, "failed to fetch dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GET /dispatches/recommend?lat=&lng=
func (h *DispatchHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeError(w, h.logr, "invalid lat", err)
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		writeError(w, h.logr, "invalid lng", err)
		return
	}
	if err := services.ValidateCoordinates(lat, lng); err != nil {
		writeError(w, h.logr, "invalid coordinates", err)
		return
	}

	var ranked []scoring.ScoredCandidate
	if h.live != nil {
		ranked = h.live.Recommend(lat, lng)
	} else if ranked, err = h.service.Recommend(r.Context(), lat, lng); err != nil {
		writeError(w, h.logr, "failed to rank hospitals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ranked})
}

type dispatchStatusReq struct {
	Status models.DispatchStatus `json:"status"`
}

// POST /dispatches/{id}/status
func (h *DispatchHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	var req dispatchStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	d, err := h.service.Transition(r.Context(), id, req.Status, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, h.logr, "failed to update dispatch", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
