package handlers

import (
	"context"
	"net/http"

	"medops-bknd/internal/triage"

	"go.uber.org/zap"
)

type Classifier interface {
	Classify(ctx context.Context, symptoms string) (triage.Result, error)
}

type TriageHandler struct {
	classifier Classifier
	logr       *zap.Logger
}

func NewTriageHandler(c Classifier, logr *zap.Logger) *TriageHandler {
	return &TriageHandler{classifier: c, logr: logr}
}

type triageReq struct {
	Symptoms string `json:"symptoms"`
}

// POST /triage
func (h *TriageHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req triageReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	res, err := h.classifier.Classify(r.Context(), req.Symptoms)
	if err != nil {
		writeError(w, h.logr, "triage failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
