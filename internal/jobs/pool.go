package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// HandlerFunc runs one unit of work for a job. It owns the job until it returns.
type HandlerFunc func(ctx context.Context, jobID uuid.UUID)

// Pool runs job handlers on a fixed set of worker goroutines fed by a bounded queue.
// A job id is in flight from the moment it is accepted until its handler returns;
// while in flight it cannot be submitted again or acquired by TryAcquire.
type Pool struct {
	handler HandlerFunc
	queue   chan uuid.UUID
	workers int
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
	closed   bool
}

func NewPool(workers, queueSize int, handler HandlerFunc, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler:  handler,
		queue:    make(chan uuid.UUID, max(queueSize, 1)),
		workers:  max(workers, 1),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queue_size", cap(p.queue))
}

// Submit enqueues jobID without blocking. It returns false when the job is
// already in flight, the queue is full, or the pool is stopped.
func (p *Pool) Submit(jobID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, busy := p.inFlight[jobID]; busy {
		return false
	}
	select {
	case p.queue <- jobID:
		p.inFlight[jobID] = struct{}{}
		return true
	default:
		p.logger.Warn("job queue full", "job_id", jobID)
		return false
	}
}

// TryAcquire marks jobID in flight outside the queue. Callers must Release it.
func (p *Pool) TryAcquire(jobID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inFlight[jobID]; busy {
		return false
	}
	p.inFlight[jobID] = struct{}{}
	return true
}

func (p *Pool) Release(jobID uuid.UUID) {
	p.mu.Lock()
	delete(p.inFlight, jobID)
	p.mu.Unlock()
}

// InFlight reports whether jobID is queued, running, or acquired.
func (p *Pool) InFlight(jobID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, busy := p.inFlight[jobID]
	return busy
}

// Stop refuses new work and waits for queued and running handlers to finish.
// When ctx expires first, the handlers' context is cancelled and Stop returns.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (p *Pool) work(n int) {
	defer p.wg.Done()
	for jobID := range p.queue {
		p.run(n, jobID)
	}
}

func (p *Pool) run(n int, jobID uuid.UUID) {
	defer p.Release(jobID)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in job handler", "error", r, "job_id", jobID, "worker", n)
		}
	}()
	p.handler(p.ctx, jobID)
}
