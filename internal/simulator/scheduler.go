// Package simulator drives the synthetic data feeds: patient intake on a cron
// schedule and ambulance GPS journeys.
package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs cron jobs keyed by actor. Scheduling a key that already has
// a job replaces it, so each actor has at most one active task.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	logr    *zap.Logger
}

func NewScheduler(logr *zap.Logger) *Scheduler {
	if logr == nil {
		logr = zap.NewNop()
	}
	cl := cronLogger{logr.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
		logr:    logr,
	}
}

// Schedule registers fn under key. spec accepts the standard five fields and
// descriptors such as "@every 30s".
func (s *Scheduler) Schedule(key, spec string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { fn(s.ctx) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", key, err)
	}
	if prev, ok := s.entries[key]; ok {
		s.cron.Remove(prev)
	}
	s.entries[key] = id
	s.logr.Info("simulation scheduled", zap.String("key", key), zap.String("spec", spec))
	return nil
}

// Unschedule stops the job under key. It reports whether one was running.
func (s *Scheduler) Unschedule(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[key]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, key)
	return true
}

func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop removes every job, cancels running ones and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for k, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, k)
	}
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
