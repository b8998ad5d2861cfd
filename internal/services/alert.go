package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const (
	AlertKindSurge    = "surge"
	AlertKindCapacity = "capacity"
	AlertKindManual   = "manual"
)

type AlertService struct {
	db   *bun.DB
	logr *zap.Logger
}

func NewAlertService(db *bun.DB, logr *zap.Logger) *AlertService {
	return &AlertService{db: db, logr: logr}
}

func surgeAlert(pred scoring.SurgePrediction, snap scoring.NetworkSnapshot) *models.Alert {
	return &models.Alert{
		Kind:     AlertKindSurge,
		Severity: "critical",
		Title:    "Network surge risk is High",
		Message: fmt.Sprintf(
			"Occupancy %d%% (predicted %d%% within %d minutes), %d of %d hospitals critical. %s",
			pred.CurrentOccupancy, pred.PredictedOccupancy, pred.PredictionWindowMinutes,
			snap.CriticalCount, snap.Hospitals, strings.Join(pred.RecommendedActions, "; ")),
	}
}

// RaiseSurgeAlert records a network-wide surge alert.
func (s *AlertService) RaiseSurgeAlert(ctx context.Context, pred scoring.SurgePrediction, snap scoring.NetworkSnapshot) error {
	a := surgeAlert(pred, snap)
	if _, err := s.db.NewInsert().Model(a).Returning("*").Exec(ctx); err != nil {
		return apperr.Write("raise surge alert", err)
	}
	s.logr.Warn("surge alert raised", zap.String("alert_id", a.ID.String()), zap.Int("occupancy", pred.CurrentOccupancy))
	return nil
}

type CreateAlertRequest struct {
	HospitalID *uuid.UUID `json:"hospital_id"`
	Severity   string     `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
}

func (r *CreateAlertRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return apperr.Invalid("title", "is required")
	}
	switch r.Severity {
	case "":
		r.Severity = "info"
	case "info", "warning", "critical":
	default:
		return apperr.Invalid("severity", "must be one of info, warning, critical")
	}
	return nil
}

func (s *AlertService) Create(ctx context.Context, req CreateAlertRequest) (*models.Alert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a := &models.Alert{
		HospitalID: req.HospitalID,
		Kind:       AlertKindManual,
		Severity:   req.Severity,
		Title:      req.Title,
		Message:    req.Message,
	}
	if _, err := s.db.NewInsert().Model(a).Returning("*").Exec(ctx); err != nil {
		return nil, apperr.Write("create alert", err)
	}
	return a, nil
}

func (s *AlertService) List(ctx context.Context, unacknowledgedOnly bool, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	q := s.db.NewSelect().Model(&alerts)
	if unacknowledgedOnly {
		q = q.Where("acknowledged = false")
	}
	if err := q.Order("created_at DESC").Limit(clampLimit(limit)).Scan(ctx); err != nil {
		return nil, apperr.Fetch("alerts", err)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

// LoadOpen backs the live alert collection.
func (s *AlertService) LoadOpen(ctx context.Context) ([]models.Alert, error) {
	return s.List(ctx, true, maxListLimit)
}

func (s *AlertService) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*models.Alert, error) {
	a := &models.Alert{ID: id, Acknowledged: true, AcknowledgedBy: actor}
	res, err := s.db.NewUpdate().Model(a).
		Column("acknowledged", "acknowledged_by").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err := affected("acknowledge alert", res, err); err != nil {
		return nil, err
	}
	return a, nil
}

type NotificationService struct {
	db   *bun.DB
	logr *zap.Logger
}

func NewNotificationService(db *bun.DB, logr *zap.Logger) *NotificationService {
	return &NotificationService{db: db, logr: logr}
}

func (s *NotificationService) Notify(ctx context.Context, userID, title, body string) error {
	n := &models.Notification{UserID: userID, Title: title, Body: body, CreatedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(n).Exec(ctx); err != nil {
		return apperr.Write("notification", err)
	}
	return nil
}

func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	var ns []models.Notification
	q := s.db.NewSelect().Model(&ns).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = false")
	}
	if err := q.Order("created_at DESC").Limit(clampLimit(limit)).Scan(ctx); err != nil {
		return nil, apperr.Fetch("notifications", err)
	}
	if ns == nil {
		ns = []models.Notification{}
	}
	return ns, nil
}

// MarkRead only touches notifications owned by userID; someone else's id
// reads as not found.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID, userID string) error {
	res, err := s.db.NewUpdate().Model((*models.Notification)(nil)).
		Set("read = true").
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	return affected("mark notification read", res, err)
}
