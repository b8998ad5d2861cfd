package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"medops-bknd/internal/models"

	"go.uber.org/zap"
)

var departments = []string{
	"Emergency", "Cardiology", "Orthopedics", "Pediatrics", "Neurology", "General Medicine",
}

// Weighted towards arrivals so the simulated queue grows during a run.
var eventTypes = []string{
	models.QueueArrival, models.QueueArrival, models.QueueArrival,
	models.QueueAdmitted, models.QueueAdmitted,
	models.QueueDischarged,
}

var severities = []string{"low", "low", "medium", "medium", "high", "critical"}

// QueueRecorder persists generated events.
type QueueRecorder interface {
	Record(ctx context.Context, ev *models.QueueEvent) error
}

// QueueGenerator emits synthetic intake events against the known hospitals.
type QueueGenerator struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	seq       int
	hospitals func() []models.Hospital
	recorder  QueueRecorder
	logr      *zap.Logger
}

func NewQueueGenerator(rnd *rand.Rand, hospitals func() []models.Hospital, recorder QueueRecorder, logr *zap.Logger) *QueueGenerator {
	if logr == nil {
		logr = zap.NewNop()
	}
	return &QueueGenerator{rnd: rnd, hospitals: hospitals, recorder: recorder, logr: logr}
}

// Next builds one event. With no hospitals the event is network-wide.
func (g *QueueGenerator) Next() models.QueueEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	ev := models.QueueEvent{
		PatientLabel: fmt.Sprintf("SIM-%04d", g.seq),
		Department:   departments[g.rnd.Intn(len(departments))],
		Severity:     severities[g.rnd.Intn(len(severities))],
		EventType:    eventTypes[g.rnd.Intn(len(eventTypes))],
		Simulated:    true,
	}
	if hs := g.hospitals(); len(hs) > 0 {
		id := hs[g.rnd.Intn(len(hs))].ID
		ev.HospitalID = &id
	}
	return ev
}

// Tick records a burst of one to three events. It is the cron job body.
func (g *QueueGenerator) Tick(ctx context.Context) {
	g.mu.Lock()
	n := 1 + g.rnd.Intn(3)
	g.mu.Unlock()

	for i := 0; i < n; i++ {
		ev := g.Next()
		if err := g.recorder.Record(ctx, &ev); err != nil {
			g.logr.Error("failed to record simulated queue event", zap.Error(err))
			return
		}
		g.logr.Debug("simulated queue event",
			zap.String("patient", ev.PatientLabel),
			zap.String("type", ev.EventType),
			zap.String("id", ev.ID.String()))
	}
}
