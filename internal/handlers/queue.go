package handlers

import (
	"net/http"

	"medops-bknd/internal/models"
	"medops-bknd/internal/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type QueueHandler struct {
	service *services.QueueService
	logr    *zap.Logger
}

func NewQueueHandler(svc *services.QueueService, logr *zap.Logger) *QueueHandler {
	return &QueueHandler{service: svc, logr: logr}
}

type queueEventReq struct {
	HospitalID   *uuid.UUID `json:"hospital_id"`
	PatientLabel string     `json:"patient_label"`
	Department   string     `json:"department"`
	Severity     string     `json:"severity"`
	EventType    string     `json:"event_type"`
}

func (h *QueueHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req queueEventReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	ev := &models.QueueEvent{
		HospitalID:   req.HospitalID,
		PatientLabel: req.PatientLabel,
		Department:   req.Department,
		Severity:     req.Severity,
		EventType:    req.EventType,
	}
	if err := h.service.Record(r.Context(), ev); err != nil {
		writeError(w, h.logr, "failed to record queue event", err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *QueueHandler) Recent(w http.ResponseWriter, r *http.Request) {
	evs, err := h.service.Recent(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logr, "failed to list queue events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": evs})
}
