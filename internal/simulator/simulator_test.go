package simulator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medops-bknd/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateEndpointsAndCount(t *testing.T) {
	route := []Point{{Lat: 18.50, Lng: 73.80}, {Lat: 18.52, Lng: 73.82}, {Lat: 18.60, Lng: 73.90}}

	pts := Interpolate(route, 4, 0.0005, rand.New(rand.NewSource(1)))
	require.Len(t, pts, 1+2*4)
	assert.Equal(t, route[0], pts[0])
	assert.Equal(t, route[2], pts[len(pts)-1])

	for _, p := range pts {
		assert.InDelta(t, 18.55, p.Lat, 0.06)
		assert.InDelta(t, 73.85, p.Lng, 0.06)
	}
}

func TestInterpolateWithoutJitterIsLinear(t *testing.T) {
	pts := Interpolate([]Point{{0, 0}, {1, 2}}, 4, 0, nil)
	require.Len(t, pts, 5)
	assert.InDelta(t, 0.5, pts[2].Lat, 1e-9)
	assert.InDelta(t, 1.0, pts[2].Lng, 1e-9)
}

func TestInterpolateDegenerate(t *testing.T) {
	assert.Nil(t, Interpolate(nil, 3, 0, nil))
	assert.Equal(t, []Point{{1, 1}}, Interpolate([]Point{{1, 1}}, 3, 0, nil))
	assert.Len(t, Interpolate([]Point{{0, 0}, {1, 1}}, 0, 0, nil), 2)
}

func TestTrackerRunsJourneyToArrival(t *testing.T) {
	tr := NewTracker(time.Millisecond, nil)
	route := Interpolate([]Point{{0, 0}, {1, 1}}, 5, 0, nil)

	var mu sync.Mutex
	var seen []Point
	arrived := make(chan struct{})

	tr.Start(context.Background(), "AMB-1", Journey{
		Route: route,
		OnPosition: func(_ context.Context, p Point) error {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
			return nil
		},
		OnArrive: func(context.Context) error {
			close(arrived)
			return nil
		},
	})

	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("journey never arrived")
	}

	mu.Lock()
	assert.Equal(t, route, seen)
	mu.Unlock()
	require.Eventually(t, func() bool { return !tr.Active("AMB-1") }, time.Second, time.Millisecond)
}

func TestTrackerReplacesJourneyForSameKey(t *testing.T) {
	tr := NewTracker(5*time.Millisecond, nil)
	defer tr.StopAll()

	var firstArrived atomic.Bool
	tr.Start(context.Background(), "AMB-1", Journey{
		Route:    Interpolate([]Point{{0, 0}, {1, 1}}, 1000, 0, nil),
		OnArrive: func(context.Context) error { firstArrived.Store(true); return nil },
	})

	second := make(chan struct{})
	tr.Start(context.Background(), "AMB-1", Journey{
		Route:    []Point{{1, 1}},
		OnArrive: func(context.Context) error { close(second); return nil },
	})

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second journey never arrived")
	}
	assert.False(t, firstArrived.Load())
}

func TestTrackerStopSkipsArrival(t *testing.T) {
	tr := NewTracker(time.Millisecond, nil)

	var arrived atomic.Bool
	var positions atomic.Int32
	tr.Start(context.Background(), "AMB-2", Journey{
		Route: Interpolate([]Point{{0, 0}, {1, 1}}, 100000, 0, nil),
		OnPosition: func(context.Context, Point) error {
			positions.Add(1)
			return errors.New("store down")
		},
		OnArrive: func(context.Context) error { arrived.Store(true); return nil },
	})

	require.Eventually(t, func() bool { return positions.Load() > 2 }, time.Second, time.Millisecond)
	assert.True(t, tr.Stop("AMB-2"))
	assert.False(t, tr.Stop("AMB-2"))
	tr.StopAll()
	assert.False(t, arrived.Load())
}

type mockRecorder struct {
	RecordFunc func(ctx context.Context, ev *models.QueueEvent) error
}

func (m *mockRecorder) Record(ctx context.Context, ev *models.QueueEvent) error {
	return m.RecordFunc(ctx, ev)
}

func TestQueueGeneratorTick(t *testing.T) {
	h := models.Hospital{ID: uuid.New(), Name: "City General"}
	var got []models.QueueEvent
	rec := &mockRecorder{RecordFunc: func(_ context.Context, ev *models.QueueEvent) error {
		got = append(got, *ev)
		return nil
	}}

	g := NewQueueGenerator(rand.New(rand.NewSource(7)), func() []models.Hospital { return []models.Hospital{h} }, rec, nil)
	g.Tick(context.Background())

	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)
	for _, ev := range got {
		assert.True(t, ev.Simulated)
		require.NotNil(t, ev.HospitalID)
		assert.Equal(t, h.ID, *ev.HospitalID)
		assert.Contains(t, departments, ev.Department)
		assert.Contains(t, eventTypes, ev.EventType)
	}
	assert.Equal(t, "SIM-0001", got[0].PatientLabel)
}

func TestQueueGeneratorStopsBurstOnError(t *testing.T) {
	calls := 0
	rec := &mockRecorder{RecordFunc: func(context.Context, *models.QueueEvent) error {
		calls++
		return errors.New("insert failed")
	}}
	g := NewQueueGenerator(rand.New(rand.NewSource(3)), func() []models.Hospital { return nil }, rec, nil)
	g.Tick(context.Background())
	assert.Equal(t, 1, calls)

	ev := g.Next()
	assert.Nil(t, ev.HospitalID)
}

func TestSchedulerReplacesJobPerKey(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Schedule("queue", "@every 1h", func(context.Context) {}))
	require.NoError(t, s.Schedule("queue", "@every 2h", func(context.Context) {}))
	assert.Equal(t, []string{"queue"}, s.Keys())
	assert.Len(t, s.cron.Entries(), 1)

	assert.Error(t, s.Schedule("bad", "not a spec", func(context.Context) {}))
	assert.Len(t, s.cron.Entries(), 1)

	assert.True(t, s.Unschedule("queue"))
	assert.False(t, s.Unschedule("queue"))
	assert.Empty(t, s.cron.Entries())
	s.Stop()
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler(nil)
	var n atomic.Int32
	require.NoError(t, s.Schedule("tick", "@every 1s", func(context.Context) { n.Add(1) }))
	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool { return n.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
}
