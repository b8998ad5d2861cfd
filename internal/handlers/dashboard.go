package handlers

import (
	"net/http"

	"medops-bknd/internal/monitor"
)

type DashboardSource interface {
	Dashboard() monitor.Dashboard
}

type DashboardHandler struct {
	source DashboardSource
}

func NewDashboardHandler(src DashboardSource) *DashboardHandler {
	return &DashboardHandler{source: src}
}

// Get serves straight from memory, so it never touches the store. While the
// first load is in flight the payload carries loading=true.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Dashboard())
}
