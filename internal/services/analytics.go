package services

import (
	"context"
	"sort"
	"time"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/cache"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	pressureCacheKey = "analytics:pressure"
	surgeCacheKey    = "analytics:surge"
)

type SurgeReport struct {
	Network    scoring.NetworkSnapshot `json:"network"`
	Prediction scoring.SurgePrediction `json:"prediction"`
	Window     string                  `json:"event_window"`
	ComputedAt time.Time               `json:"computed_at"`
}

// AnalyticsService serves network-wide aggregates through a short-lived
// read-through cache.
type AnalyticsService struct {
	db        *bun.DB
	hospitals *HospitalService
	cache     cache.Cache
	ttl       time.Duration
	window    time.Duration
	logr      *zap.Logger
}

func NewAnalyticsService(db *bun.DB, hospitals *HospitalService, c cache.Cache, ttl, window time.Duration, logr *zap.Logger) *AnalyticsService {
	if c == nil {
		c = cache.Nop{}
	}
	return &AnalyticsService{db: db, hospitals: hospitals, cache: c, ttl: ttl, window: window, logr: logr}
}

func sortPressure(rows []models.HospitalPressure) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].PressureScore > rows[j].PressureScore })
}

// cached returns the value under key, or computes and stores it. Cache errors
// degrade to a direct computation.
func cached[T any](ctx context.Context, s *AnalyticsService, key string, compute func(context.Context) (T, error)) (T, error) {
	var out T
	hit, err := s.cache.GetJSON(ctx, key, &out)
	if err != nil {
		s.logr.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return out, nil
	}

	out, err = compute(ctx)
	if err != nil {
		return out, err
	}
	if err := s.cache.SetJSON(ctx, key, out, s.ttl); err != nil {
		s.logr.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

func (s *AnalyticsService) Pressure(ctx context.Context) ([]models.HospitalPressure, error) {
	return cached(ctx, s, pressureCacheKey, s.hospitals.Pressure)
}

func (s *AnalyticsService) Surge(ctx context.Context) (SurgeReport, error) {
	return cached(ctx, s, surgeCacheKey, s.computeSurge)
}

func (s *AnalyticsService) computeSurge(ctx context.Context) (SurgeReport, error) {
	var (
		hs     []models.Hospital
		recent int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hs, err = s.hospitals.LoadAll(gctx)
		return err
	})
	g.Go(func() error {
		n, err := s.db.NewSelect().Model((*models.QueueEvent)(nil)).
			Where("event_type = ?", models.QueueArrival).
			Where("created_at >= ?", time.Now().UTC().Add(-s.window)).
			Count(gctx)
		if err != nil {
			return apperr.Fetch("recent queue events", err)
		}
		recent = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return SurgeReport{}, err
	}

	return surgeReport(hs, recent, s.window, time.Now().UTC()), nil
}

func surgeReport(hs []models.Hospital, recent int, window time.Duration, now time.Time) SurgeReport {
	caps := make([]scoring.Capacity, len(hs))
	for i, h := range hs {
		caps[i] = h.Capacity()
	}
	snap := scoring.SnapshotOf(caps, recent)
	return SurgeReport{
		Network:    snap,
		Prediction: scoring.PredictSurge(snap),
		Window:     window.String(),
		ComputedAt: now,
	}
}

// Invalidate drops cached aggregates after a capacity write.
func (s *AnalyticsService) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, pressureCacheKey, surgeCacheKey); err != nil {
		s.logr.Warn("analytics cache invalidate failed", zap.Error(err))
	}
}
