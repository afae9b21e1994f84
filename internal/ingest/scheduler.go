package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
)

// AllRunner is satisfied by *Orchestrator.
type AllRunner interface {
	RunAll(ctx context.Context) model.IngestReport
}

// Scheduler runs the orchestrator immediately and then on every tick.
type Scheduler struct {
	runner   AllRunner
	interval time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	onRun   func(model.IngestReport)
}

func NewScheduler(runner AllRunner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Scheduler{runner: runner, interval: interval}
}

// OnRun registers a callback invoked after every run. Must be called before
// Start.
func (s *Scheduler) OnRun(fn func(model.IngestReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRun = fn
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	go s.loop(runCtx, s.done, s.onRun)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}, onRun func(model.IngestReport)) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report := s.runner.RunAll(ctx)
		logger.Info("scheduled ingest finished", "success", report.Success, "feeds", len(report.Results))
		if onRun != nil {
			onRun(report)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
