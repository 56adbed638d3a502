package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// cancelGrace bounds the wait for jobs to return after their context is cancelled
const cancelGrace = 5 * time.Second

var (
	// ErrPoolSaturated is returned when every worker is busy
	ErrPoolSaturated = errors.New("worker pool saturated")

	// ErrPoolClosed is returned after Shutdown
	ErrPoolClosed = errors.New("worker pool closed")
)

// WorkerPool runs jobs on a bounded number of goroutines.
// Submit never blocks: a job that finds no free worker is rejected.
type WorkerPool struct {
	sem    *semaphore.Weighted
	size   int
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	grace  time.Duration

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool creates a pool of size workers
func NewWorkerPool(size int, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("pool"),
		grace:  cancelGrace,
	}
}

// Submit starts job on a free worker
func (p *WorkerPool) Submit(job func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if !p.sem.TryAcquire(1) {
		return ErrPoolSaturated
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("job panicked", zap.Any("panic", r))
			}
		}()
		job(p.ctx)
	}()
	return nil
}

// Shutdown stops intake and waits up to timeout for running jobs.
// Jobs still running afterwards have their context cancelled; jobs that
// ignore cancellation are abandoned after a short grace period.
func (p *WorkerPool) Shutdown(timeout time.Duration) bool {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("drained")
		return true
	case <-time.After(timeout):
		p.cancel()
		p.logger.Warn("drain timed out, cancelling running jobs", zap.Duration("timeout", timeout))
		select {
		case <-done:
		case <-time.After(p.grace):
			p.logger.Error("jobs ignored cancellation, abandoning them", zap.Duration("grace", p.grace))
		}
		return false
	}
}
