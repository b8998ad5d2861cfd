package handlers

import (
	"net/http"

	"medops-bknd/internal/services"

	"go.uber.org/zap"
)

type AnalyticsHandler struct {
	service *services.AnalyticsService
	logr    *zap.Logger
}

func NewAnalyticsHandler(svc *services.AnalyticsService, logr *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc, logr: logr}
}

func (h *AnalyticsHandler) Pressure(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Pressure(r.Context())
	if err != nil {
		writeError(w, h.logr, "failed to compute pressure", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": board})
}

func (h *AnalyticsHandler) Surge(w http.ResponseWriter, r *http.Request) {
	rep, err := h.service.Surge(r.Context())
	if err != nil {
		writeError(w, h.logr, "failed to compute surge prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
