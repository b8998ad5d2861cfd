package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Interpolate walks the waypoints linearly, stepsPerLeg points per leg. The
// first and last points are exact; intermediate points get up to ±jitter
// degrees of noise. rnd may be nil when jitter is zero.
func Interpolate(waypoints []Point, stepsPerLeg int, jitter float64, rnd *rand.Rand) []Point {
	if len(waypoints) == 0 {
		return nil
	}
	if stepsPerLeg < 1 {
		stepsPerLeg = 1
	}

	out := make([]Point, 0, 1+(len(waypoints)-1)*stepsPerLeg)
	out = append(out, waypoints[0])
	for i := 0; i+1 < len(waypoints); i++ {
		a, b := waypoints[i], waypoints[i+1]
		for s := 1; s <= stepsPerLeg; s++ {
			f := float64(s) / float64(stepsPerLeg)
			p := Point{Lat: a.Lat + (b.Lat-a.Lat)*f, Lng: a.Lng + (b.Lng-a.Lng)*f}
			last := i+2 == len(waypoints) && s == stepsPerLeg
			if jitter > 0 && !last && rnd != nil {
				p.Lat += (rnd.Float64()*2 - 1) * jitter
				p.Lng += (rnd.Float64()*2 - 1) * jitter
			}
			out = append(out, p)
		}
	}
	return out
}

// Journey is one ambulance run. OnPosition is called once per tick with the
// next point; OnArrive after the final point.
type Journey struct {
	Route      []Point
	OnPosition func(ctx context.Context, p Point) error
	OnArrive   func(ctx context.Context) error
}

// Tracker runs at most one journey per key. Starting a journey for a key that
// is already moving cancels the earlier one.
type Tracker struct {
	mu     sync.Mutex
	tick   time.Duration
	active map[string]*run
	wg     sync.WaitGroup
	logr   *zap.Logger
}

type run struct {
	cancel context.CancelFunc
}

func NewTracker(tick time.Duration, logr *zap.Logger) *Tracker {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	if logr == nil {
		logr = zap.NewNop()
	}
	return &Tracker{tick: tick, active: make(map[string]*run), logr: logr}
}

func (t *Tracker) Start(ctx context.Context, key string, j Journey) {
	t.mu.Lock()
	if prev, ok := t.active[key]; ok {
		prev.cancel()
		delete(t.active, key)
	}
	jctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	t.active[key] = r
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.finish(key, r)
		t.drive(jctx, key, j)
	}()
}

func (t *Tracker) drive(ctx context.Context, key string, j Journey) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for _, p := range j.Route {
		select {
		case <-ctx.Done():
			t.logr.Debug("journey cancelled", zap.String("key", key))
			return
		case <-ticker.C:
		}
		if j.OnPosition != nil {
			if err := j.OnPosition(ctx, p); err != nil {
				t.logr.Warn("journey position update failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	if j.OnArrive != nil {
		if err := j.OnArrive(ctx); err != nil {
			t.logr.Error("journey arrival update failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (t *Tracker) finish(key string, r *run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[key] == r {
		delete(t.active, key)
	}
	r.cancel()
}

// Stop cancels the journey under key, if any. It does not wait, so it is safe
// to call from a journey callback.
func (t *Tracker) Stop(key string) bool {
	t.mu.Lock()
	r, ok := t.active[key]
	if ok {
		delete(t.active, key)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	r.cancel()
	return true
}

func (t *Tracker) Active(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[key]
	return ok
}

// StopAll cancels every journey and waits for them.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	for k, r := range t.active {
		r.cancel()
		delete(t.active, k)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
