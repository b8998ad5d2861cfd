// Package monitor holds the process-wide live view of the hospital network
// and derives the dashboard and surge state from it.
package monitor

import (
	"context"
	"sync"
	"time"

	"medops-bknd/internal/livecache"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Sources struct {
	Hospitals livecache.Source[models.Hospital]
	// Queue feeds the capped recent-intake list shown on the dashboard.
	Queue livecache.Source[models.QueueEvent]
	// Arrivals feeds the surge window: every arrival inside EventWindow.
	Arrivals   livecache.Source[models.QueueEvent]
	Dispatches livecache.Source[models.DispatchRequest]
	Transfers  livecache.Source[models.TransferRequest]
	Alerts     livecache.Source[models.Alert]
}

type Config struct {
	QueueLimit    int
	EventWindow   time.Duration
	FetchAttempts int
	FetchBackoff  time.Duration
	// RecheckInterval re-evaluates surge risk while no events arrive, so
	// arrivals ageing out of the window are noticed.
	RecheckInterval time.Duration
}

// AlertRaiser persists a surge alert when the network escalates to High.
type AlertRaiser interface {
	RaiseSurgeAlert(ctx context.Context, pred scoring.SurgePrediction, snap scoring.NetworkSnapshot) error
}

type Monitor struct {
	hospitals  *livecache.Collection[models.Hospital]
	queue      *livecache.Collection[models.QueueEvent]
	arrivals   *livecache.Collection[models.QueueEvent]
	dispatches *livecache.Collection[models.DispatchRequest]
	transfers  *livecache.Collection[models.TransferRequest]
	alerts     *livecache.Collection[models.Alert]

	cfg    Config
	raiser AlertRaiser
	logr   *zap.Logger
	now    func() time.Time

	// mu guards the capacity aggregate, rebuilt only when hospitals change.
	mu       sync.Mutex
	dirty    bool
	caps     []scoring.Capacity
	lastRisk scoring.Risk

	signal chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(src Sources, cfg Config, raiser AlertRaiser, logr *zap.Logger) *Monitor {
	if logr == nil {
		logr = zap.NewNop()
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 20
	}
	if cfg.EventWindow <= 0 {
		cfg.EventWindow = 2 * time.Hour
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = time.Minute
	}

	m := &Monitor{
		cfg:    cfg,
		raiser: raiser,
		logr:   logr,
		now:    time.Now,
		dirty:  true,
		signal: make(chan struct{}, 1),
	}

	m.hospitals = livecache.New(src.Hospitals, livecache.Options[models.Hospital]{
		Name:          models.TableHospitals,
		Key:           models.Hospital.Key,
		Less:          func(a, b models.Hospital) bool { return a.Name < b.Name },
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Logger:        logr,
	})
	m.queue = livecache.New(src.Queue, livecache.Options[models.QueueEvent]{
		Name:          models.TableQueueEvents,
		Key:           models.QueueEvent.Key,
		Limit:         cfg.QueueLimit,
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Logger:        logr,
	})
	m.arrivals = livecache.New(src.Arrivals, livecache.Options[models.QueueEvent]{
		Name:          models.TableQueueEvents + ".arrivals",
		Key:           models.QueueEvent.Key,
		Keep:          func(q models.QueueEvent) bool { return q.EventType == models.QueueArrival },
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Logger:        logr,
	})
	m.dispatches = livecache.New(src.Dispatches, livecache.Options[models.DispatchRequest]{
		Name:          models.TableDispatches,
		Key:           models.DispatchRequest.Key,
		Keep:          models.DispatchRequest.Active,
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Logger:        logr,
	})
	m.transfers = livecache.New(src.Transfers, livecache.Options[models.TransferRequest]{
		Name:          models.TableTransfers,
		Key:           models.TransferRequest.Key,
		Keep:          models.TransferRequest.Open,
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Logger:        logr,
	})
	m.alerts = livecache.New(src.Alerts, livecache.Options[models.Alert]{
		Name:          models.TableAlerts,
		Key:           models.Alert.Key,
		Keep:          func(a models.Alert) bool { return !a.Acknowledged },
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Logger:        logr,
	})

	m.hospitals.OnChange(m.invalidate)
	m.arrivals.OnChange(m.poke)
	return m
}

// Start loads every collection in parallel, fixes the surge baseline and then
// watches for escalations. A surge that is already High at start-up does not
// raise an alert.
func (m *Monitor) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.hospitals.Start(gctx) })
	g.Go(func() error { return m.queue.Start(gctx) })
	g.Go(func() error { return m.arrivals.Start(gctx) })
	g.Go(func() error { return m.dispatches.Start(gctx) })
	g.Go(func() error { return m.transfers.Start(gctx) })
	g.Go(func() error { return m.alerts.Start(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	pred, _ := m.Surge()
	m.mu.Lock()
	m.lastRisk = pred.SurgeRisk
	m.mu.Unlock()
	m.logr.Info("monitor started",
		zap.Int("hospitals", m.hospitals.Len()),
		zap.String("surge_risk", string(pred.SurgeRisk)))

	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.watch(watchCtx)
	return nil
}

func (m *Monitor) invalidate() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
	m.poke()
}

// poke asks the watcher to re-check surge risk.
func (m *Monitor) poke() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Monitor) watch(ctx context.Context) {
	defer m.wg.Done()
	tick := time.NewTicker(m.cfg.RecheckInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.signal:
			m.checkEscalation(ctx)
		case <-tick.C:
			m.checkEscalation(ctx)
		}
	}
}

func (m *Monitor) checkEscalation(ctx context.Context) {
	pred, snap := m.Surge()

	m.mu.Lock()
	prev := m.lastRisk
	m.lastRisk = pred.SurgeRisk
	m.mu.Unlock()

	if pred.SurgeRisk != scoring.RiskHigh || prev == scoring.RiskHigh {
		return
	}
	m.logr.Warn("network surge risk escalated",
		zap.String("from", string(prev)),
		zap.Int("occupancy", pred.CurrentOccupancy),
		zap.Int("critical", snap.CriticalCount))
	if m.raiser == nil {
		return
	}
	if err := m.raiser.RaiseSurgeAlert(ctx, pred, snap); err != nil {
		m.logr.Error("failed to raise surge alert", zap.Error(err))
	}
}

// Surge returns the current prediction. The capacity aggregate is rebuilt
// only after a hospital change; the arrival window is pruned and counted on
// every call.
func (m *Monitor) Surge() (scoring.SurgePrediction, scoring.NetworkSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirty {
		hs := m.hospitals.Items()
		caps := make([]scoring.Capacity, len(hs))
		for i, h := range hs {
			caps[i] = h.Capacity()
		}
		m.caps = caps
		m.dirty = false
	}

	since := m.now().Add(-m.cfg.EventWindow)
	m.arrivals.RemoveWhere(func(q models.QueueEvent) bool { return q.CreatedAt.Before(since) })

	snap := scoring.SnapshotOf(m.caps, m.arrivals.Len())
	return copyPrediction(scoring.PredictSurge(snap)), snap
}

func copyPrediction(p scoring.SurgePrediction) scoring.SurgePrediction {
	p.RecommendedActions = append([]string(nil), p.RecommendedActions...)
	if p.RecommendedActions == nil {
		p.RecommendedActions = []string{}
	}
	return p
}

// Hospitals is the live hospital list, ordered by name.
func (m *Monitor) Hospitals() []models.Hospital {
	return m.hospitals.Items()
}

// Recommend ranks the live hospitals for a pickup at lat, lng.
func (m *Monitor) Recommend(lat, lng float64) []scoring.ScoredCandidate {
	hs := m.hospitals.Items()
	cands := make([]scoring.Candidate, len(hs))
	for i, h := range hs {
		cands[i] = h.Candidate()
	}
	return scoring.RankCandidates(lat, lng, cands)
}

// Close stops the watcher and disposes every collection.
func (m *Monitor) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.hospitals.Dispose()
	m.queue.Dispose()
	m.arrivals.Dispose()
	m.dispatches.Dispose()
	m.transfers.Dispose()
	m.alerts.Dispose()
}
