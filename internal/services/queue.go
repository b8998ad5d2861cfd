package services

import (
	"context"
	"strings"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type QueueService struct {
	db   *bun.DB
	logr *zap.Logger
}

func NewQueueService(db *bun.DB, logr *zap.Logger) *QueueService {
	return &QueueService{db: db, logr: logr}
}

func validateQueueEvent(ev *models.QueueEvent) error {
	ev.PatientLabel = strings.TrimSpace(ev.PatientLabel)
	if ev.PatientLabel == "" {
		return apperr.Invalid("patient_label", "is required")
	}
	ev.Department = strings.TrimSpace(ev.Department)
	if ev.Department == "" {
		return apperr.Invalid("department", "is required")
	}
	switch ev.EventType {
	case "":
		ev.EventType = models.QueueArrival
	case models.QueueArrival, models.QueueAdmitted, models.QueueDischarged:
	default:
		return apperr.Invalid("event_type", "must be one of arrival, admitted, discharged")
	}
	if ev.Severity == "" {
		ev.Severity = "medium"
	}
	return nil
}

// Record inserts an intake event. The simulator writes through here too.
func (s *QueueService) Record(ctx context.Context, ev *models.QueueEvent) error {
	if err := validateQueueEvent(ev); err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(ev).Returning("*").Exec(ctx); err != nil {
		return apperr.Write("queue event", err)
	}
	return nil
}

// ArrivalsWithin returns every arrival recorded in the trailing window,
// newest first. It backs the live surge window, so it is not capped.
func (s *QueueService) ArrivalsWithin(ctx context.Context, window time.Duration) ([]models.QueueEvent, error) {
	var evs []models.QueueEvent
	if err := s.db.NewSelect().Model(&evs).
		Where("event_type = ?", models.QueueArrival).
		Where("created_at >= ?", time.Now().UTC().Add(-window)).
		Order("created_at DESC").
		Scan(ctx); err != nil {
		return nil, apperr.Fetch("queue arrivals", err)
	}
	if evs == nil {
		evs = []models.QueueEvent{}
	}
	return evs, nil
}

// Recent returns the newest events first.
func (s *QueueService) Recent(ctx context.Context, limit int) ([]models.QueueEvent, error) {
	var evs []models.QueueEvent
	if err := s.db.NewSelect().Model(&evs).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Scan(ctx); err != nil {
		return nil, apperr.Fetch("queue events", err)
	}
	if evs == nil {
		evs = []models.QueueEvent{}
	}
	return evs, nil
}
