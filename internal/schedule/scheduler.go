// internal/schedule/scheduler.go

// Package schedule owns the single cron scheduler of a worker process.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Entry describes a registered job.
type Entry struct {
	ID   cron.EntryID
	Name string
	Spec string
	Next time.Time
}

// Scheduler runs named jobs on cron specs. A job that is still running when
// its next tick arrives is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	names map[cron.EntryID]Entry
}

// New creates a stopped scheduler. Specs use the standard five fields plus
// descriptors such as @hourly or @every 30m.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    context.Background(),
		names:  make(map[cron.EntryID]Entry),
	}
}

// Add registers fn under name. fn receives the context passed to Start.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context)) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.logger.Info("scheduled job firing", "job", name)
		fn(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.mu.Lock()
	s.names[id] = Entry{ID: id, Name: name, Spec: spec}
	s.mu.Unlock()
	s.logger.Info("scheduled job registered", "job", name, "spec", spec)
	return id, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists registered jobs with their next fire time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.cron.Entries() {
		entry := s.names[e.ID]
		entry.Next = e.Next
		out = append(out, entry)
	}
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
