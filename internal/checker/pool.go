package checker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Submit after Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool runs submitted jobs on a fixed number of goroutines.
// At most size jobs execute at once; Submit blocks while every worker is busy.
type WorkerPool struct {
	jobs   chan func()
	logger *zap.Logger
	wg     sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewWorkerPool creates a pool and starts its workers.
func NewWorkerPool(size int, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := &WorkerPool{
		jobs:   make(chan func()),
		logger: logger,
	}
	pool.startWorkers(size)
	return pool
}

func (p *WorkerPool) startWorkers(count int) {
	p.wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(job)
			}
		}()
	}
}

// run isolates a panicking job so the worker survives.
func (p *WorkerPool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", zap.Any("panic", r))
		}
	}()
	job()
}

// Submit hands job to an idle worker, waiting until one is free or ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new jobs and waits for running ones to finish.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}
