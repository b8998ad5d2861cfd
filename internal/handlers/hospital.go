package handlers

import (
	"net/http"

	"medops-bknd/internal/services"
	"medops-bknd/internal/session"
	"medops-bknd/internal/utils"

	"go.uber.org/zap"
)

type HospitalHandler struct {
	service   *services.HospitalService
	analytics *services.AnalyticsService
	logr      *zap.Logger
}

func NewHospitalHandler(svc *services.HospitalService, analytics *services.AnalyticsService, logr *zap.Logger) *HospitalHandler {
	return &HospitalHandler{service: svc, analytics: analytics, logr: logr}
}

// GET /hospitals?status=busy,critical&region=&q=
func (h *HospitalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hs, err := h.service.List(r.Context(), services.HospitalFilter{
		Statuses: utils.ParseQueryList(q, "status"),
		Regions:  utils.ParseQueryList(q, "region"),
		Search:   q.Get("q"),
	})
	if err != nil {
		writeError(w, h.logr, "failed to list hospitals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": hs})
}

func (h *HospitalHandler) Regions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.service.Regions(r.Context())
	if err != nil {
		writeError(w, h.logr, "failed to list regions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": regions})
}

func (h *HospitalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateHospitalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	hosp, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.logr, "failed to register hospital", err)
		return
	}
	h.analytics.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, hosp)
}

func (h *HospitalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	hosp, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logr, "failed to fetch hospital", err)
		return
	}
	writeJSON(w, http.StatusOK, hosp)
}

// PATCH /hospitals/{id}/capacity
func (h *HospitalHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	var req services.UpdateCapacityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	hosp, err := h.service.UpdateCapacity(r.Context(), id, req, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, h.logr, "failed to update capacity", err)
		return
	}
	h.analytics.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, hosp)
}

func (h *HospitalHandler) CapacityLogs(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	logs, err := h.service.CapacityLogs(r.Context(), id, queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logr, "failed to fetch capacity logs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": logs})
}
