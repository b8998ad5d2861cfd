package services

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

var (
	staffRoles  = []string{"doctor", "nurse", "paramedic", "technician"}
	staffShifts = []string{"morning", "evening", "night"}
)

type StaffService struct {
	db   *bun.DB
	logr *zap.Logger
}

func NewStaffService(db *bun.DB, logr *zap.Logger) *StaffService {
	return &StaffService{db: db, logr: logr}
}

type CreateStaffRequest struct {
	HospitalID uuid.UUID `json:"hospital_id"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
	Shift      string    `json:"shift"`
	OnDuty     bool      `json:"on_duty"`
	Email      string    `json:"email"`
}

func (r *CreateStaffRequest) Validate() error {
	if r.HospitalID == uuid.Nil {
		return apperr.Invalid("hospital_id", "is required")
	}
	r.FullName = strings.TrimSpace(r.FullName)
	if r.FullName == "" {
		return apperr.Invalid("full_name", "is required")
	}
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if !slices.Contains(staffRoles, r.Role) {
		return apperr.Invalid("role", "must be one of "+strings.Join(staffRoles, ", "))
	}
	r.Department = strings.TrimSpace(r.Department)
	if r.Department == "" {
		return apperr.Invalid("department", "is required")
	}
	return validShift(&r.Shift)
}

func validShift(shift *string) error {
	*shift = strings.ToLower(strings.TrimSpace(*shift))
	if *shift != "" && !slices.Contains(staffShifts, *shift) {
		return apperr.Invalid("shift", "must be one of "+strings.Join(staffShifts, ", "))
	}
	return nil
}

// AllocationRequest reassigns a staff member; nil fields are unchanged.
type AllocationRequest struct {
	HospitalID *uuid.UUID `json:"hospital_id"`
	Department *string    `json:"department"`
	Shift      *string    `json:"shift"`
	OnDuty     *bool      `json:"on_duty"`
}

func (r *AllocationRequest) columns() ([]string, error) {
	var cols []string
	if r.HospitalID != nil {
		if *r.HospitalID == uuid.Nil {
			return nil, apperr.Invalid("hospital_id", "must not be empty")
		}
		cols = append(cols, "hospital_id")
	}
	if r.Department != nil {
		d := strings.TrimSpace(*r.Department)
		if d == "" {
			return nil, apperr.Invalid("department", "must not be empty")
		}
		r.Department = &d
		cols = append(cols, "department")
	}
	if r.Shift != nil {
		if err := validShift(r.Shift); err != nil {
			return nil, err
		}
		cols = append(cols, "shift")
	}
	if r.OnDuty != nil {
		cols = append(cols, "on_duty")
	}
	if len(cols) == 0 {
		return nil, apperr.Invalid("", "nothing to update")
	}
	return cols, nil
}

func (s *StaffService) Create(ctx context.Context, req CreateStaffRequest) (*models.Staff, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	st := &models.Staff{
		HospitalID: req.HospitalID,
		FullName:   req.FullName,
		Role:       req.Role,
		Department: req.Department,
		Shift:      req.Shift,
		OnDuty:     req.OnDuty,
		Email:      req.Email,
	}
	if _, err := s.db.NewInsert().Model(st).Returning("*").Exec(ctx); err != nil {
		return nil, apperr.Write("create staff", err)
	}
	return st, nil
}

type StaffFilter struct {
	HospitalID  *uuid.UUID
	Departments []string
	OnDuty      *bool
}

func (s *StaffService) List(ctx context.Context, f StaffFilter) ([]models.Staff, error) {
	var staff []models.Staff
	q := s.db.NewSelect().Model(&staff)
	if f.HospitalID != nil {
		q = q.Where("hospital_id = ?", *f.HospitalID)
	}
	if len(f.Departments) > 0 {
		q = q.Where("LOWER(department) IN (?)", bun.In(stringsToLower(f.Departments)))
	}
	if f.OnDuty != nil {
		q = q.Where("on_duty = ?", *f.OnDuty)
	}
	if err := q.Order("department ASC", "full_name ASC").Scan(ctx); err != nil {
		return nil, apperr.Fetch("staff", err)
	}
	if staff == nil {
		staff = []models.Staff{}
	}
	return staff, nil
}

type DepartmentStaff struct {
	Department string         `json:"department"`
	OnDuty     int            `json:"on_duty"`
	Total      int            `json:"total"`
	Staff      []models.Staff `json:"staff"`
}

func (s *StaffService) ByDepartment(ctx context.Context, f StaffFilter) ([]DepartmentStaff, error) {
	staff, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return groupByDepartment(staff), nil
}

func groupByDepartment(staff []models.Staff) []DepartmentStaff {
	idx := map[string]int{}
	var out []DepartmentStaff
	for _, st := range staff {
		i, ok := idx[st.Department]
		if !ok {
			i = len(out)
			idx[st.Department] = i
			out = append(out, DepartmentStaff{Department: st.Department, Staff: []models.Staff{}})
		}
		out[i].Staff = append(out[i].Staff, st)
		out[i].Total++
		if st.OnDuty {
			out[i].OnDuty++
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Department < out[b].Department })
	if out == nil {
		out = []DepartmentStaff{}
	}
	return out
}

func (s *StaffService) Allocate(ctx context.Context, id uuid.UUID, req AllocationRequest) (*models.Staff, error) {
	cols, err := req.columns()
	if err != nil {
		return nil, err
	}
	st := &models.Staff{ID: id, UpdatedAt: time.Now().UTC()}
	if req.HospitalID != nil {
		st.HospitalID = *req.HospitalID
	}
	if req.Department != nil {
		st.Department = *req.Department
	}
	if req.Shift != nil {
		st.Shift = *req.Shift
	}
	if req.OnDuty != nil {
		st.OnDuty = *req.OnDuty
	}

	res, err := s.db.NewUpdate().Model(st).
		Column(append(cols, "updated_at")...).
		WherePK().
		Returning("*").
		Exec(ctx)
	if err := affected("allocate staff", res, err); err != nil {
		return nil, err
	}
	s.logr.Info("staff allocated", zap.String("staff_id", id.String()), zap.Strings("fields", cols))
	return st, nil
}
