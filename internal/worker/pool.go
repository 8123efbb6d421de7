// Package worker runs the gateway's background jobs: the async
// file-indexing pool and the vector store expiration sweeper.
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type task struct {
	name string
	run  func(ctx context.Context)
}

// Pool is a fixed-size worker pool. It implements the vector store
// service's scheduler contract for async file indexing.
type Pool struct {
	tasks   chan task
	workers int
	logger  zerolog.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int, logger zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		tasks:   make(chan task, workers*4),
		workers: workers,
		logger:  logger.With().Str("component", "worker-pool").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info().Int("workers", p.workers).Msg("worker pool started")
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.runTask(t)
		}
	}
}

func (p *Pool) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("task", t.name).Interface("panic", r).Msg("background task panicked")
		}
	}()
	t.run(p.ctx)
}

// Schedule queues a task. When the queue is full the task runs inline so
// indexing work is never silently dropped. Scheduling on a stopped pool is
// a no-op.
func (p *Pool) Schedule(name string, run func(ctx context.Context)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}
	select {
	case p.tasks <- task{name: name, run: run}:
	default:
		p.logger.Debug().Str("task", name).Msg("queue full, running task inline")
		p.runTask(task{name: name, run: run})
	}
}

// Stop drains the queue and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.logger.Info().Msg("worker pool stopped")
}
