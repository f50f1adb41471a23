package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"uptimewatch/internal/storage"
)

const (
	DefaultCadence        = time.Minute
	DefaultMaxConcurrency = 8
)

// ErrSchedulerStopped is returned once Stop has been called.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// SchedulerConfig holds the tunables for a Scheduler. Zero values fall back
// to the package defaults.
type SchedulerConfig struct {
	Cadence        time.Duration
	MaxConcurrency int
	Clock          clockwork.Clock
	Logger         *zap.Logger
}

type schedulerState int

const (
	stateIdle schedulerState = iota
	stateRunning
	stateStopped
)

// Scheduler periodically finds due monitors and checks them on a bounded
// worker pool. A monitor never has two checks in flight at once, whether the
// second comes from a later tick or from Runner.Run.
type Scheduler struct {
	store   storage.MonitorStore
	runner  *Runner
	pool    *WorkerPool
	clock   clockwork.Clock
	cadence time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	state    schedulerState
	cancel   context.CancelFunc
	loopDone chan struct{}
	cycles   sync.WaitGroup
}

// NewScheduler creates a Scheduler. Its worker pool is live immediately, so
// RunDueChecks may be used without Start.
func NewScheduler(store storage.MonitorStore, runner *Runner, cfg SchedulerConfig) *Scheduler {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = runner.clock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		store:   store,
		runner:  runner,
		pool:    NewWorkerPool(cfg.MaxConcurrency, cfg.Logger),
		clock:   cfg.Clock,
		cadence: cfg.Cadence,
		logger:  cfg.Logger,
	}
}

// Start runs one cycle immediately and then one per cadence tick until ctx is
// cancelled or Stop is called. Each tick dispatches without waiting for the
// previous cycle to finish. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrSchedulerStopped
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := s.clock.NewTicker(s.cadence)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.state = stateRunning

	s.logger.Info("starting scheduler", zap.Duration("cadence", s.cadence))
	go func() {
		defer close(s.loopDone)
		defer ticker.Stop()

		s.dispatchCycle()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.Chan():
				s.dispatchCycle()
			}
		}
	}()
	return nil
}

// dispatchCycle runs a cycle in the background. Cycles are detached from
// the loop context so that Stop lets in-flight checks complete.
func (s *Scheduler) dispatchCycle() {
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		if _, err := s.RunDueChecks(context.Background()); err != nil && !errors.Is(err, ErrSchedulerStopped) {
			s.logger.Error("scheduled cycle failed", zap.Error(err))
		}
	}()
}

// Stop halts ticking and waits, bounded by ctx, for dispatched checks to
// finish. No new cycles start after Stop returns.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.state = stateStopped
	cancel, loopDone := s.cancel, s.loopDone
	s.mu.Unlock()

	if prev == stateStopped {
		return nil
	}
	s.logger.Info("stopping scheduler")
	if prev == stateRunning {
		cancel()
		<-loopDone
	}

	done := make(chan struct{})
	go func() {
		s.cycles.Wait()
		s.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight checks: %w", ctx.Err())
	}
}

// RunDueChecks runs one scheduling cycle: every due monitor without a check
// already in flight is dispatched to the pool. It blocks until the dispatched
// checks finish and returns their URLs in dispatch order. Failures of
// individual checks are logged and never fail the cycle.
func (s *Scheduler) RunDueChecks(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	stopped := s.state == stateStopped
	s.mu.Unlock()
	if stopped {
		return nil, ErrSchedulerStopped
	}

	logger := s.logger.With(zap.String("run_id", uuid.NewString()))
	now := s.clock.Now()

	candidates, err := s.store.FindDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find due monitors: %w", err)
	}

	// checks outlive the trigger's context once dispatched
	checkCtx := context.WithoutCancel(ctx)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
		skipped  int
		checked  = make([]string, 0, len(candidates))
	)
	for _, m := range candidates {
		if !m.Due(now) {
			continue
		}
		if !s.runner.limiter.Acquire(m.ID) {
			logger.Debug("check already in flight, skipping", zap.String("monitor_id", m.ID))
			skipped++
			continue
		}

		m := m
		wg.Add(1)
		err := s.pool.Submit(ctx, func() {
			defer wg.Done()
			defer s.runner.limiter.Release(m.ID)
			if _, err := s.runner.execute(checkCtx, m); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			s.runner.limiter.Release(m.ID)
			logger.Warn("stopped dispatching checks", zap.Error(err))
			break
		}
		checked = append(checked, m.URL)
	}
	wg.Wait()

	logger.Info("check cycle complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("dispatched", len(checked)),
		zap.Int("skipped", skipped),
		zap.Int("failed", failures),
	)
	return checked, nil
}
