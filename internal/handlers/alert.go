package handlers

import (
	"net/http"

	"medops-bknd/internal/services"
	"medops-bknd/internal/session"

	"go.uber.org/zap"
)

type AlertHandler struct {
	alerts        *services.AlertService
	notifications *services.NotificationService
	logr          *zap.Logger
}

func NewAlertHandler(alerts *services.AlertService, notifications *services.NotificationService, logr *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, notifications: notifications, logr: logr}
}

// GET /alerts?unacknowledged=true&limit=
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	as, err := h.alerts.List(r.Context(), queryBool(r, "unacknowledged"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logr, "failed to list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": as})
}

func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	a, err := h.alerts.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.logr, "failed to create alert", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	a, err := h.alerts.Acknowledge(r.Context(), id, session.ActorID(r.Context()))
	if err != nil {
		writeError(w, h.logr, "failed to acknowledge alert", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /notifications?unread=true
func (h *AlertHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ns, err := h.notifications.ListForUser(r.Context(), sess.UserID, queryBool(r, "unread"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, h.logr, "failed to list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ns})
}

func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	if err := h.notifications.MarkRead(r.Context(), id, sess.UserID); err != nil {
		writeError(w, h.logr, "failed to mark notification read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
