package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"
	"medops-bknd/internal/simulator"
	"medops-bknd/internal/workflow"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrNoDestination means no hospital outside critical status could be found
// for an automatic destination.
var ErrNoDestination = errors.New("no hospital can accept the patient")

// JourneyTracker runs simulated ambulance movement.
type JourneyTracker interface {
	Start(ctx context.Context, key string, j simulator.Journey)
	Stop(key string) bool
}

type GPSConfig struct {
	StepsPerLeg int
	Jitter      float64
}

type DispatchService struct {
	db        *bun.DB
	hospitals *HospitalService
	tracker   JourneyTracker
	gps       GPSConfig
	logr      *zap.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewDispatchService(db *bun.DB, hospitals *HospitalService, tracker JourneyTracker, gps GPSConfig, logr *zap.Logger) *DispatchService {
	if gps.StepsPerLeg <= 0 {
		gps.StepsPerLeg = 30
	}
	return &DispatchService{
		db:        db,
		hospitals: hospitals,
		tracker:   tracker,
		gps:       gps,
		logr:      logr,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type CreateDispatchRequest struct {
	AmbulanceCode         string          `json:"ambulance_code"`
	OriginLat             float64         `json:"origin_lat"`
	OriginLng             float64         `json:"origin_lng"`
	DestinationHospitalID *uuid.UUID      `json:"destination_hospital_id"`
	PatientCondition      string          `json:"patient_condition"`
	Priority              models.Priority `json:"priority"`
	Notes                 string          `json:"notes"`
}

func (r *CreateDispatchRequest) Validate() error {
	if err := ValidateCoordinates(r.OriginLat, r.OriginLng); err != nil {
		return err
	}
	r.PatientCondition = strings.TrimSpace(r.PatientCondition)
	if r.PatientCondition == "" {
		return apperr.Invalid("patient_condition", "is required")
	}
	if r.Priority == "" {
		r.Priority = models.PriorityMedium
	}
	if !r.Priority.Valid() {
		return apperr.Invalid("priority", "must be one of low, medium, high, critical")
	}
	r.AmbulanceCode = strings.ToUpper(strings.TrimSpace(r.AmbulanceCode))
	return nil
}

// chooseDestination keeps an explicit destination when it is a known
// hospital, otherwise picks the best-scoring non-critical one.
func chooseDestination(lat, lng float64, requested *uuid.UUID, hs []models.Hospital) (models.Hospital, error) {
	if requested != nil {
		for _, h := range hs {
			if h.ID == *requested {
				return h, nil
			}
		}
		return models.Hospital{}, apperr.Invalid("destination_hospital_id", "unknown hospital")
	}

	cands := make([]scoring.Candidate, len(hs))
	for i, h := range hs {
		cands[i] = h.Candidate()
	}
	id, ok := scoring.SelectOptimalDestination(lat, lng, cands)
	if !ok {
		return models.Hospital{}, ErrNoDestination
	}
	for _, h := range hs {
		if h.ID.String() == id {
			return h, nil
		}
	}
	return models.Hospital{}, ErrNoDestination
}

func (s *DispatchService) Create(ctx context.Context, req CreateDispatchRequest, actor string) (*models.DispatchRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hs, err := s.hospitals.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	dest, err := chooseDestination(req.OriginLat, req.OriginLng, req.DestinationHospitalID, hs)
	if err != nil {
		return nil, err
	}

	d := &models.DispatchRequest{
		AmbulanceCode:         req.AmbulanceCode,
		OriginLat:             req.OriginLat,
		OriginLng:             req.OriginLng,
		DestinationHospitalID: dest.ID,
		PatientCondition:      req.PatientCondition,
		Priority:              req.Priority,
		Notes:                 req.Notes,
		Status:                models.DispatchPending,
		RequestedBy:           actor,
	}
	if _, err := s.db.NewInsert().Model(d).Returning("*").Exec(ctx); err != nil {
		return nil, apperr.Write("create dispatch", err)
	}

	s.logr.Info("dispatch created",
		zap.String("dispatch_id", d.ID.String()),
		zap.String("destination", dest.Name),
		zap.Bool("auto_destination", req.DestinationHospitalID == nil),
		zap.String("priority", string(d.Priority)))
	return d, nil
}

// Recommend ranks hospitals for a pickup point straight from the store.
func (s *DispatchService) Recommend(ctx context.Context, lat, lng float64) ([]scoring.ScoredCandidate, error) {
	if err := ValidateCoordinates(lat, lng); err != nil {
		return nil, err
	}
	hs, err := s.hospitals.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	cands := make([]scoring.Candidate, len(hs))
	for i, h := range hs {
		cands[i] = h.Candidate()
	}
	return scoring.RankCandidates(lat, lng, cands), nil
}

func (s *DispatchService) Get(ctx context.Context, id uuid.UUID) (*models.DispatchRequest, error) {
	d := new(models.DispatchRequest)
	if err := s.db.NewSelect().Model(d).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, lookup("dispatch", err)
	}
	return d, nil
}

// List returns the newest dispatches first.
func (s *DispatchService) List(ctx context.Context, activeOnly bool, limit int) ([]models.DispatchRequest, error) {
	var ds []models.DispatchRequest
	q := s.db.NewSelect().Model(&ds)
	if activeOnly {
		q = q.Where("status NOT IN (?)", bun.In([]models.DispatchStatus{models.DispatchCompleted, models.DispatchCancelled}))
	}
	if err := q.Order("created_at DESC").Limit(clampLimit(limit)).Scan(ctx); err != nil {
		return nil, apperr.Fetch("dispatches", err)
	}
	if ds == nil {
		ds = []models.DispatchRequest{}
	}
	return ds, nil
}

// LoadActive backs the live dispatch collection.
func (s *DispatchService) LoadActive(ctx context.Context) ([]models.DispatchRequest, error) {
	return s.List(ctx, true, maxListLimit)
}

// Transition moves a dispatch along its workflow. The update is conditional
// on the status read, so two racing transitions cannot both succeed.
func (s *DispatchService) Transition(ctx context.Context, id uuid.UUID, to models.DispatchStatus, actor string) (*models.DispatchRequest, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.Dispatch.Transition(d.Status, to); err != nil {
		return nil, err
	}

	from := d.Status
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(d).
		Column("status", "updated_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err := affected("dispatch status", res, err); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, &workflow.TransitionError{Entity: "dispatch", From: string(from), To: string(to)}
		}
		return nil, err
	}

	s.logr.Info("dispatch status changed",
		zap.String("dispatch_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor))

	s.afterTransition(ctx, d)
	return d, nil
}

func journeyKey(d *models.DispatchRequest) string {
	if d.AmbulanceCode != "" {
		return d.AmbulanceCode
	}
	return d.ID.String()
}

func (s *DispatchService) afterTransition(ctx context.Context, d *models.DispatchRequest) {
	if s.tracker == nil {
		return
	}
	switch d.Status {
	case models.DispatchEnRoute:
		dest, err := s.hospitals.Get(ctx, d.DestinationHospitalID)
		if err != nil {
			s.logr.Error("cannot simulate journey without destination", zap.Error(err))
			return
		}
		s.startJourney(ctx, d, dest)
	case models.DispatchArrived, models.DispatchCompleted, models.DispatchCancelled:
		s.tracker.Stop(journeyKey(d))
	}
}

func (s *DispatchService) startJourney(ctx context.Context, d *models.DispatchRequest, dest *models.Hospital) {
	from := simulator.Point{Lat: d.OriginLat, Lng: d.OriginLng}
	if d.CurrentLat != nil && d.CurrentLng != nil {
		from = simulator.Point{Lat: *d.CurrentLat, Lng: *d.CurrentLng}
	}
	to := simulator.Point{Lat: dest.Latitude, Lng: dest.Longitude}

	s.rndMu.Lock()
	route := simulator.Interpolate([]simulator.Point{from, to}, s.gps.StepsPerLeg, s.gps.Jitter, s.rnd)
	s.rndMu.Unlock()

	id := d.ID
	s.tracker.Start(context.WithoutCancel(ctx), journeyKey(d), simulator.Journey{
		Route: route,
		OnPosition: func(ctx context.Context, p simulator.Point) error {
			return s.UpdatePosition(ctx, id, p.Lat, p.Lng)
		},
		OnArrive: func(ctx context.Context) error {
			_, err := s.Transition(ctx, id, models.DispatchArrived, "simulator")
			return err
		},
	})
}

func (s *DispatchService) UpdatePosition(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	if err := ValidateCoordinates(lat, lng); err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model((*models.DispatchRequest)(nil)).
		Set("current_lat = ?", lat).
		Set("current_lng = ?", lng).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return affected("dispatch position", res, err)
}
