package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"medops-bknd/internal/changefeed"
	"medops-bknd/internal/livecache"
	"medops-bknd/internal/models"
	"medops-bknd/internal/scoring"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRaiser struct {
	mu    sync.Mutex
	calls []scoring.SurgePrediction
}

func (m *mockRaiser) RaiseSurgeAlert(_ context.Context, pred scoring.SurgePrediction, _ scoring.NetworkSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, pred)
	return nil
}

func (m *mockRaiser) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func static[T any](hub *changefeed.Hub, table string, rows []T) changefeed.TableSource[T] {
	return changefeed.TableSource[T]{
		Hub:   hub,
		Table: table,
		Load:  func(context.Context) ([]T, error) { return rows, nil },
	}
}

func hospital(name string, total, avail int) models.Hospital {
	return models.Hospital{
		ID:            uuid.New(),
		Name:          name,
		TotalBeds:     total,
		AvailableBeds: avail,
		Status:        scoring.ClassifyStatus(avail),
		Latitude:      18.52,
		Longitude:     73.85,
	}
}

func publish(t *testing.T, hub *changefeed.Hub, table string, op livecache.Op, row any) {
	t.Helper()
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	hub.Publish(changefeed.Event{Table: table, Op: op, Row: raw})
}

type fixture struct {
	hub    *changefeed.Hub
	mon    *Monitor
	raiser *mockRaiser
}

func newFixture(t *testing.T, hospitals []models.Hospital, queue []models.QueueEvent) *fixture {
	t.Helper()
	hub := changefeed.NewHub(64, nil)
	raiser := &mockRaiser{}
	mon := New(Sources{
		Hospitals:  static(hub, models.TableHospitals, hospitals),
		Queue:      static(hub, models.TableQueueEvents, queue),
		Arrivals:   static(hub, models.TableQueueEvents, queue),
		Dispatches: static[models.DispatchRequest](hub, models.TableDispatches, nil),
		Transfers:  static[models.TransferRequest](hub, models.TableTransfers, nil),
		Alerts:     static[models.Alert](hub, models.TableAlerts, nil),
	}, Config{QueueLimit: 20, EventWindow: time.Hour, FetchBackoff: 2 * time.Millisecond}, raiser, nil)

	require.NoError(t, mon.Start(context.Background()))
	t.Cleanup(mon.Close)
	return &fixture{hub: hub, mon: mon, raiser: raiser}
}

func TestSurgeFromLiveCollections(t *testing.T) {
	// 185 beds, 37 free, one critical hospital.
	hs := []models.Hospital{
		hospital("A", 50, 10),
		hospital("B", 60, 20),
		hospital("C", 40, 5),
		hospital("D", 35, 2),
	}
	now := time.Now()
	var queue []models.QueueEvent
	for i := 0; i < 10; i++ {
		queue = append(queue, models.QueueEvent{ID: uuid.New(), EventType: models.QueueArrival, CreatedAt: now})
	}
	queue = append(queue, models.QueueEvent{ID: uuid.New(), EventType: models.QueueArrival, CreatedAt: now.Add(-3 * time.Hour)})
	queue = append(queue, models.QueueEvent{ID: uuid.New(), EventType: models.QueueDischarged, CreatedAt: now})

	f := newFixture(t, hs, queue)
	pred, snap := f.mon.Surge()

	assert.Equal(t, 185, snap.TotalBeds)
	assert.Equal(t, 37, snap.AvailableBeds)
	assert.Equal(t, 1, snap.CriticalCount)
	assert.Equal(t, 10, snap.RecentEvents)
	assert.Equal(t, 80, pred.CurrentOccupancy)
	assert.Equal(t, 85, pred.PredictedOccupancy)
	assert.Equal(t, scoring.RiskHigh, pred.SurgeRisk)

	// High at start-up is the baseline, not an escalation.
	assert.Zero(t, f.raiser.count())
}

func TestEscalationToHighRaisesOneAlert(t *testing.T) {
	a := hospital("A", 100, 60)
	f := newFixture(t, []models.Hospital{a}, nil)

	pred, _ := f.mon.Surge()
	require.Equal(t, scoring.RiskLow, pred.SurgeRisk)

	a.AvailableBeds = 10
	publish(t, f.hub, models.TableHospitals, livecache.OpUpdate, a)

	require.Eventually(t, func() bool { return f.raiser.count() == 1 }, time.Second, 5*time.Millisecond)

	a.AvailableBeds = 5
	publish(t, f.hub, models.TableHospitals, livecache.OpUpdate, a)
	require.Eventually(t, func() bool {
		_, snap := f.mon.Surge()
		return snap.AvailableBeds == 5
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.raiser.count(), "staying High does not re-alert")
}

func arrivals(n int, at time.Time) []models.QueueEvent {
	out := make([]models.QueueEvent, n)
	for i := range out {
		out[i] = models.QueueEvent{ID: uuid.New(), EventType: models.QueueArrival, CreatedAt: at.Add(-time.Duration(i) * time.Second)}
	}
	return out
}

func TestSurgeCountsEveryArrivalInWindow(t *testing.T) {
	f := newFixture(t, []models.Hospital{hospital("A", 100, 60)}, arrivals(30, time.Now().Add(-10*time.Minute)))

	pred, snap := f.mon.Surge()
	assert.Equal(t, 30, snap.RecentEvents)
	assert.Equal(t, 40, pred.CurrentOccupancy)
	assert.Equal(t, 55, pred.PredictedOccupancy)

	assert.Len(t, f.mon.Dashboard().RecentQueue, 20)
}

func TestArrivalsAgeOutOfWindow(t *testing.T) {
	t0 := time.Now()
	f := newFixture(t, []models.Hospital{hospital("A", 100, 60)}, arrivals(10, t0))

	_, snap := f.mon.Surge()
	require.Equal(t, 10, snap.RecentEvents)

	f.mon.mu.Lock()
	f.mon.now = func() time.Time { return t0.Add(3 * time.Hour) }
	f.mon.mu.Unlock()

	pred, snap := f.mon.Surge()
	assert.Equal(t, 0, snap.RecentEvents)
	assert.Equal(t, pred.CurrentOccupancy, pred.PredictedOccupancy)
	assert.Zero(t, f.mon.arrivals.Len())
}

func TestFinishedRowsLeaveTheLiveCollections(t *testing.T) {
	f := newFixture(t, []models.Hospital{hospital("A", 100, 60)}, nil)

	d := models.DispatchRequest{ID: uuid.New(), Status: models.DispatchEnRoute}
	tr := models.TransferRequest{ID: uuid.New(), Status: models.TransferAccepted}
	publish(t, f.hub, models.TableDispatches, livecache.OpInsert, d)
	publish(t, f.hub, models.TableTransfers, livecache.OpInsert, tr)
	require.Eventually(t, func() bool {
		return f.mon.dispatches.Len() == 1 && f.mon.transfers.Len() == 1
	}, time.Second, 5*time.Millisecond)

	d.Status = models.DispatchCompleted
	tr.Status = models.TransferRejected
	publish(t, f.hub, models.TableDispatches, livecache.OpUpdate, d)
	publish(t, f.hub, models.TableTransfers, livecache.OpUpdate, tr)
	require.Eventually(t, func() bool {
		return f.mon.dispatches.Len() == 0 && f.mon.transfers.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDashboardReportsFailedResync(t *testing.T) {
	hub := changefeed.NewHub(64, nil)
	var mu sync.Mutex
	var alertsDown error
	mon := New(Sources{
		Hospitals:  static(hub, models.TableHospitals, []models.Hospital{hospital("A", 100, 60)}),
		Queue:      static[models.QueueEvent](hub, models.TableQueueEvents, nil),
		Arrivals:   static[models.QueueEvent](hub, models.TableQueueEvents, nil),
		Dispatches: static[models.DispatchRequest](hub, models.TableDispatches, nil),
		Transfers:  static[models.TransferRequest](hub, models.TableTransfers, nil),
		Alerts: changefeed.TableSource[models.Alert]{
			Hub:   hub,
			Table: models.TableAlerts,
			Load: func(context.Context) ([]models.Alert, error) {
				mu.Lock()
				defer mu.Unlock()
				return nil, alertsDown
			},
		},
	}, Config{FetchBackoff: 2 * time.Millisecond}, nil, nil)
	require.NoError(t, mon.Start(context.Background()))
	t.Cleanup(mon.Close)
	assert.Empty(t, mon.Dashboard().Errors)

	mu.Lock()
	alertsDown = errors.New("db down")
	mu.Unlock()
	hub.Reset()

	require.Eventually(t, func() bool {
		return mon.Dashboard().Errors[models.TableAlerts] != ""
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, mon.Dashboard().Errors[models.TableAlerts], "db down")

	mu.Lock()
	alertsDown = nil
	mu.Unlock()
	require.Eventually(t, func() bool { return mon.Dashboard().Errors == nil }, time.Second, 5*time.Millisecond)
}

func TestSurgeIsRecomputedOnlyWhenDirty(t *testing.T) {
	f := newFixture(t, []models.Hospital{hospital("A", 10, 5)}, nil)

	first, _ := f.mon.Surge()
	first.RecommendedActions[0] = "mutated"
	second, _ := f.mon.Surge()
	assert.NotEqual(t, "mutated", second.RecommendedActions[0])

	f.mon.mu.Lock()
	dirty := f.mon.dirty
	f.mon.mu.Unlock()
	assert.False(t, dirty)

	publish(t, f.hub, models.TableQueueEvents, livecache.OpInsert,
		models.QueueEvent{ID: uuid.New(), EventType: models.QueueArrival, CreatedAt: time.Now()})
	require.Eventually(t, func() bool {
		_, snap := f.mon.Surge()
		return snap.RecentEvents == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDashboard(t *testing.T) {
	busy := hospital("Busy", 100, 4)
	calm := hospital("Calm", 100, 80)
	f := newFixture(t, []models.Hospital{calm, busy}, nil)

	d := models.DispatchRequest{ID: uuid.New(), Status: models.DispatchEnRoute}
	done := models.DispatchRequest{ID: uuid.New(), Status: models.DispatchCompleted}
	tr := models.TransferRequest{ID: uuid.New(), Status: models.TransferPending}
	al := models.Alert{ID: uuid.New(), Kind: "surge"}
	publish(t, f.hub, models.TableDispatches, livecache.OpInsert, d)
	publish(t, f.hub, models.TableDispatches, livecache.OpInsert, done)
	publish(t, f.hub, models.TableTransfers, livecache.OpInsert, tr)
	publish(t, f.hub, models.TableAlerts, livecache.OpInsert, al)

	require.Eventually(t, func() bool {
		dash := f.mon.Dashboard()
		return len(dash.ActiveDispatches) == 1 && len(dash.PendingTransfers) == 1 && len(dash.OpenAlerts) == 1
	}, time.Second, 5*time.Millisecond)

	dash := f.mon.Dashboard()
	require.Len(t, dash.Hospitals, 2)
	assert.Equal(t, "Busy", dash.Hospitals[0].Name, "highest pressure first")
	assert.Equal(t, scoring.StatusBusy, dash.Hospitals[0].Status)
	assert.Equal(t, 1, dash.StatusCounts[scoring.StatusBusy])
	assert.Equal(t, 1, dash.StatusCounts[scoring.StatusNormal])
	assert.Equal(t, 0, dash.StatusCounts[scoring.StatusCritical])
	assert.Equal(t, d.ID, dash.ActiveDispatches[0].ID)

	al.Acknowledged = true
	publish(t, f.hub, models.TableAlerts, livecache.OpUpdate, al)
	require.Eventually(t, func() bool { return len(f.mon.Dashboard().OpenAlerts) == 0 }, time.Second, 5*time.Millisecond)
}

func TestRecommendSkipsCritical(t *testing.T) {
	crit := hospital("Crit", 50, 1)
	ok := hospital("Ok", 50, 30)
	f := newFixture(t, []models.Hospital{crit, ok}, nil)

	ranked := f.mon.Recommend(18.52, 73.85)
	require.Len(t, ranked, 1)
	assert.Equal(t, ok.ID.String(), ranked[0].ID)
}
