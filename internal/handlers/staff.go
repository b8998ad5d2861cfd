package handlers

import (
	"net/http"
	"strconv"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/services"
	"medops-bknd/internal/utils"

	"go.uber.org/zap"
)

type StaffHandler struct {
	service *services.StaffService
	logr    *zap.Logger
}

func NewStaffHandler(svc *services.StaffService, logr *zap.Logger) *StaffHandler {
	return &StaffHandler{service: svc, logr: logr}
}

func staffFilter(r *http.Request) (services.StaffFilter, error) {
	q := r.URL.Query()
	hospitalID, err := queryUUID(r, "hospital_id")
	if err != nil {
		return services.StaffFilter{}, err
	}
	f := services.StaffFilter{
		HospitalID:  hospitalID,
		Departments: utils.ParseQueryList(q, "department"),
	}
	if raw := q.Get("on_duty"); raw != "" {
		onDuty, err := strconv.ParseBool(raw)
		if err != nil {
			return services.StaffFilter{}, apperr.Invalid("on_duty", "must be true or false")
		}
		f.OnDuty = &onDuty
	}
	return f, nil
}

// GET /staff?hospital_id=&department=ER,ICU&on_duty=true
func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := staffFilter(r)
	if err != nil {
		writeError(w, h.logr, "invalid filter", err)
		return
	}
	staff, err := h.service.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logr, "failed to list staff", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": staff})
}

func (h *StaffHandler) ByDepartment(w http.ResponseWriter, r *http.Request) {
	f, err := staffFilter(r)
	if err != nil {
		writeError(w, h.logr, "invalid filter", err)
		return
	}
	groups, err := h.service.ByDepartment(r.Context(), f)
	if err != nil {
		writeError(w, h.logr, "failed to group staff", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": groups})
}

func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	st, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.logr, "failed to create staff", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// PATCH /staff/{id}/allocation
func (h *StaffHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logr, "invalid id", err)
		return
	}
	var req services.AllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logr, "invalid payload", err)
		return
	}
	st, err := h.service.Allocate(r.Context(), id, req)
	if err != nil {
		writeError(w, h.logr, "failed to allocate staff", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
