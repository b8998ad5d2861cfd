package services

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type HospitalService struct {
	db   *bun.DB
	logr *zap.Logger

	auditFailures atomic.Int64
}

func NewHospitalService(db *bun.DB, logr *zap.Logger) *HospitalService {
	return &HospitalService{db: db, logr: logr}
}

type CreateHospitalRequest struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Region           string   `json:"region"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	TotalBeds        int      `json:"total_beds"`
	AvailableBeds    int      `json:"available_beds"`
	AvailableDoctors int      `json:"available_doctors"`
	Specialties      []string `json:"specialties"`
	ContactPhone     string   `json:"contact_phone"`
}

func (r *CreateHospitalRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if err := ValidateCoordinates(r.Latitude, r.Longitude); err != nil {
		return err
	}
	return validateCounts(r.TotalBeds, r.AvailableBeds, r.AvailableDoctors)
}

func validateCounts(total, available, doctors int) error {
	if total < 0 {
		return apperr.Invalid("total_beds", "must not be negative")
	}
	if available < 0 {
		return apperr.Invalid("available_beds", "must not be negative")
	}
	if available > total {
		return apperr.Invalid("available_beds", "must not exceed total_beds")
	}
	if doctors < 0 {
		return apperr.Invalid("available_doctors", "must not be negative")
	}
	return nil
}

// UpdateCapacityRequest changes counters; nil fields keep their value.
type UpdateCapacityRequest struct {
	TotalBeds        *int `json:"total_beds"`
	AvailableBeds    *int `json:"available_beds"`
	AvailableDoctors *int `json:"available_doctors"`
}

// applyCapacity returns the hospital after the update and the audit row that
// records it. Status is re-derived from the new bed count.
func applyCapacity(h models.Hospital, req UpdateCapacityRequest, actor string) (models.Hospital, models.CapacityLog, error) {
	if req.TotalBeds == nil && req.AvailableBeds == nil && req.AvailableDoctors == nil {
		return h, models.CapacityLog{}, apperr.Invalid("", "nothing to update")
	}

	next := h
	if req.TotalBeds != nil {
		next.TotalBeds = *req.TotalBeds
	}
	if req.AvailableBeds != nil {
		next.AvailableBeds = *req.AvailableBeds
	}
	if req.AvailableDoctors != nil {
		next.AvailableDoctors = *req.AvailableDoctors
	}
	if err := validateCounts(next.TotalBeds, next.AvailableBeds, next.AvailableDoctors); err != nil {
		return h, models.CapacityLog{}, err
	}
	next.Status = scoring.ClassifyStatus(next.AvailableBeds)

	entry := models.CapacityLog{
		HospitalID:      h.ID,
		PreviousBeds:    h.AvailableBeds,
		NewBeds:         next.AvailableBeds,
		PreviousDoctors: h.AvailableDoctors,
		NewDoctors:      next.AvailableDoctors,
		ActorID:         actor,
	}
	return next, entry, nil
}

func (s *HospitalService) Create(ctx context.Context, req CreateHospitalRequest) (*models.Hospital, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	h := &models.Hospital{
		Name:             req.Name,
		Address:          req.Address,
		Region:           req.Region,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		TotalBeds:        req.TotalBeds,
		AvailableBeds:    req.AvailableBeds,
		AvailableDoctors: req.AvailableDoctors,
		Status:           scoring.ClassifyStatus(req.AvailableBeds),
		Specialties:      req.Specialties,
		ContactPhone:     req.ContactPhone,
	}
	if h.Specialties == nil {
		h.Specialties = []string{}
	}
	if _, err := s.db.NewInsert().Model(h).Returning("*").Exec(ctx); err != nil {
		return nil, apperr.Write("create hospital", err)
	}
	s.logr.Info("hospital registered", zap.String("hospital_id", h.ID.String()), zap.String("name", h.Name))
	return h, nil
}

type HospitalFilter struct {
	Statuses []string
	Regions  []string
	Search   string
}

// List returns hospitals ordered by name.
func (s *HospitalService) List(ctx context.Context, f HospitalFilter) ([]models.Hospital, error) {
	var hs []models.Hospital
	q := s.db.NewSelect().Model(&hs)
	if len(f.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(f.Statuses))
	}
	if len(f.Regions) > 0 {
		q = q.Where("LOWER(region) IN (?)", bun.In(stringsToLower(f.Regions)))
	}
	if f.Search != "" {
		search := "%" + f.Search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("name ILIKE ?", search).WhereOr("address ILIKE ?", search)
		})
	}
	if err := q.Order("name ASC").Scan(ctx); err != nil {
		return nil, apperr.Fetch("hospitals", err)
	}
	if hs == nil {
		hs = []models.Hospital{}
	}
	return hs, nil
}

// Regions lists the distinct regions hospitals are registered in.
func (s *HospitalService) Regions(ctx context.Context) ([]string, error) {
	regions := []string{}
	err := s.db.NewSelect().
		Model((*models.Hospital)(nil)).
		ColumnExpr("DISTINCT region").
		Where("region IS NOT NULL AND region <> ''").
		OrderExpr("region ASC").
		Scan(ctx, &regions)
	if err != nil {
		return nil, apperr.Fetch("hospital regions", err)
	}
	return regions, nil
}

// LoadAll backs the live hospital collection.
func (s *HospitalService) LoadAll(ctx context.Context) ([]models.Hospital, error) {
	return s.List(ctx, HospitalFilter{})
}

func (s *HospitalService) Get(ctx context.Context, id uuid.UUID) (*models.Hospital, error) {
	h := new(models.Hospital)
	if err := s.db.NewSelect().Model(h).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, lookup("hospital", err)
	}
	return h, nil
}

// UpdateCapacity writes the new counters, then appends the audit row. The two
// writes are not atomic: if the audit insert fails the update stands, the
// failure is logged and counted. Concurrent updates are last-write-wins.
func (s *HospitalService) UpdateCapacity(ctx context.Context, id uuid.UUID, req UpdateCapacityRequest, actor string) (*models.Hospital, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, audit, err := applyCapacity(*current, req, actor)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	_, err = s.db.NewUpdate().Model(&next).
		Column("total_beds", "available_beds", "available_doctors", "status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, apperr.Write("update capacity", err)
	}

	if _, err := s.db.NewInsert().Model(&audit).Exec(ctx); err != nil {
		s.auditFailures.Add(1)
		s.logr.Error("capacity audit write failed",
			zap.Error(apperr.ErrAuditWrite),
			zap.NamedError("cause", err),
			zap.String("hospital_id", id.String()),
			zap.Int("previous_beds", audit.PreviousBeds),
			zap.Int("new_beds", audit.NewBeds))
	}

	s.logr.Info("capacity updated",
		zap.String("hospital_id", id.String()),
		zap.String("status", string(next.Status)),
		zap.Int("available_beds", next.AvailableBeds),
		zap.String("actor", actor))
	return &next, nil
}

// AuditFailures counts capacity updates whose audit row could not be written.
func (s *HospitalService) AuditFailures() int64 {
	return s.auditFailures.Load()
}

func (s *HospitalService) CapacityLogs(ctx context.Context, id uuid.UUID, limit int) ([]models.CapacityLog, error) {
	var logs []models.CapacityLog
	err := s.db.NewSelect().Model(&logs).
		Where("hospital_id = ?", id).
		Order("created_at DESC", "id DESC").
		Limit(clampLimit(limit)).
		Scan(ctx)
	if err != nil {
		return nil, apperr.Fetch("capacity logs", err)
	}
	if logs == nil {
		logs = []models.CapacityLog{}
	}
	return logs, nil
}

// Pressure ranks every hospital by pressure score, highest first.
func (s *HospitalService) Pressure(ctx context.Context) ([]models.HospitalPressure, error) {
	hs, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return pressureBoard(hs), nil
}

func pressureBoard(hs []models.Hospital) []models.HospitalPressure {
	out := make([]models.HospitalPressure, len(hs))
	for i, h := range hs {
		out[i] = models.PressureOf(h)
	}
	sortPressure(out)
	return out
}
