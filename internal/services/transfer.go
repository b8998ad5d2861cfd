package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"
	"medops-bknd/internal/workflow"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Notifier delivers a message to one user.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string) error
}

type TransferService struct {
	db       *bun.DB
	notifier Notifier
	logr     *zap.Logger
}

func NewTransferService(db *bun.DB, notifier Notifier, logr *zap.Logger) *TransferService {
	return &TransferService{db: db, notifier: notifier, logr: logr}
}

type CreateTransferRequest struct {
	SourceHospitalID      uuid.UUID      `json:"source_hospital_id"`
	DestinationHospitalID uuid.UUID      `json:"destination_hospital_id"`
	PatientName           string         `json:"patient_name"`
	Reason                string         `json:"reason"`
	Urgency               models.Urgency `json:"urgency"`
	SpecialtyNeeded       string         `json:"specialty_needed"`
}

func (r *CreateTransferRequest) Validate() error {
	if r.SourceHospitalID == uuid.Nil {
		return apperr.Invalid("source_hospital_id", "is required")
	}
	if r.DestinationHospitalID == uuid.Nil {
		return apperr.Invalid("destination_hospital_id", "is required")
	}
	if r.SourceHospitalID == r.DestinationHospitalID {
		return apperr.Invalid("destination_hospital_id", "must differ from the source hospital")
	}
	r.PatientName = strings.TrimSpace(r.PatientName)
	if r.PatientName == "" {
		return apperr.Invalid("patient_name", "is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return apperr.Invalid("reason", "is required")
	}
	if r.Urgency == "" {
		r.Urgency = models.UrgencyRoutine
	}
	if !r.Urgency.Valid() {
		return apperr.Invalid("urgency", "must be one of routine, urgent, emergency")
	}
	return nil
}

func (s *TransferService) Create(ctx context.Context, req CreateTransferRequest, actor string) (*models.TransferRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	n, err := s.db.NewSelect().Model((*models.Hospital)(nil)).
		Where("id IN (?)", bun.In([]uuid.UUID{req.SourceHospitalID, req.DestinationHospitalID})).
		Count(ctx)
	if err != nil {
		return nil, apperr.Fetch("transfer hospitals", err)
	}
	if n != 2 {
		return nil, apperr.Invalid("hospital", "source and destination must be registered hospitals")
	}

	t := &models.TransferRequest{
		SourceHospitalID:      req.SourceHospitalID,
		DestinationHospitalID: req.DestinationHospitalID,
		PatientName:           req.PatientName,
		Reason:                req.Reason,
		Urgency:               req.Urgency,
		SpecialtyNeeded:       req.SpecialtyNeeded,
		Status:                models.TransferPending,
		RequestedBy:           actor,
	}
	if _, err := s.db.NewInsert().Model(t).Returning("*").Exec(ctx); err != nil {
		return nil, apperr.Write("create transfer", err)
	}
	s.logr.Info("transfer requested",
		zap.String("transfer_id", t.ID.String()),
		zap.String("urgency", string(t.Urgency)))
	return t, nil
}

func (s *TransferService) Get(ctx context.Context, id uuid.UUID) (*models.TransferRequest, error) {
	t := new(models.TransferRequest)
	if err := s.db.NewSelect().Model(t).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, lookup("transfer", err)
	}
	return t, nil
}

type TransferFilter struct {
	Statuses   []string
	HospitalID *uuid.UUID
	Limit      int
}

func (s *TransferService) List(ctx context.Context, f TransferFilter) ([]models.TransferRequest, error) {
	var ts []models.TransferRequest
	q := s.db.NewSelect().Model(&ts)
	if len(f.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(f.Statuses))
	}
	if f.HospitalID != nil {
		q = q.Where("source_hospital_id = ? OR destination_hospital_id = ?", *f.HospitalID, *f.HospitalID)
	}
	if err := q.Order("created_at DESC").Limit(clampLimit(f.Limit)).Scan(ctx); err != nil {
		return nil, apperr.Fetch("transfers", err)
	}
	if ts == nil {
		ts = []models.TransferRequest{}
	}
	return ts, nil
}

var openTransferStatuses = []string{
	string(models.TransferPending),
	string(models.TransferAccepted),
	string(models.TransferInTransit),
}

// LoadOpen backs the live transfer collection.
func (s *TransferService) LoadOpen(ctx context.Context) ([]models.TransferRequest, error) {
	return s.List(ctx, TransferFilter{
		Statuses: openTransferStatuses,
		Limit:    maxListLimit,
	})
}

func (s *TransferService) Accept(ctx context.Context, id uuid.UUID, actor string) (*models.TransferRequest, error) {
	t, err := s.move(ctx, id, models.TransferAccepted, actor, "")
	if err != nil {
		return nil, err
	}
	s.notify(ctx, t, "Transfer accepted",
		fmt.Sprintf("The transfer of %s has been accepted.", t.PatientName))
	return t, nil
}

func (s *TransferService) Reject(ctx context.Context, id uuid.UUID, reason, actor string) (*models.TransferRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "a rejection reason is required")
	}
	t, err := s.move(ctx, id, models.TransferRejected, actor, reason)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, t, "Transfer rejected",
		fmt.Sprintf("The transfer of %s was rejected: %s", t.PatientName, reason))
	return t, nil
}

func (s *TransferService) StartTransit(ctx context.Context, id uuid.UUID, actor string) (*models.TransferRequest, error) {
	return s.move(ctx, id, models.TransferInTransit, actor, "")
}

func (s *TransferService) Complete(ctx context.Context, id uuid.UUID, actor string) (*models.TransferRequest, error) {
	return s.move(ctx, id, models.TransferCompleted, actor, "")
}

func (s *TransferService) Cancel(ctx context.Context, id uuid.UUID, actor string) (*models.TransferRequest, error) {
	return s.move(ctx, id, models.TransferCancelled, actor, "")
}

func (s *TransferService) move(ctx context.Context, id uuid.UUID, to models.TransferStatus, actor, reason string) (*models.TransferRequest, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.Transfer.Transition(t.Status, to); err != nil {
		return nil, err
	}

	from := t.Status
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	cols := []string{"status", "updated_at"}
	if to == models.TransferAccepted || to == models.TransferRejected {
		t.RespondedBy = actor
		cols = append(cols, "responded_by")
	}
	if to == models.TransferRejected {
		t.RejectionReason = reason
		cols = append(cols, "rejection_reason")
	}

	res, err := s.db.NewUpdate().Model(t).
		Column(cols...).
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err := affected("transfer status", res, err); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &workflow.TransitionError{Entity: "transfer", From: string(from), To: string(to)}
		}
		return nil, err
	}

	s.logr.Info("transfer status changed",
		zap.String("transfer_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor))
	return t, nil
}

// notify tells the requester about a decision. Failure does not undo the
// decision.
func (s *TransferService) notify(ctx context.Context, t *models.TransferRequest, title, body string) {
	if s.notifier == nil || t.RequestedBy == "" || t.RequestedBy == "system" {
		return
	}
	if err := s.notifier.Notify(ctx, t.RequestedBy, title, body); err != nil {
		s.logr.Warn("transfer notification failed",
			zap.Error(apperr.ErrAuditWrite),
			zap.NamedError("cause", err),
			zap.String("transfer_id", t.ID.String()))
	}
}
