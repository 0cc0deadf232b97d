// Package worker provides a worker pool for background lifecycle
// passes.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work executed by a worker.
type Task interface {
	Execute(ctx context.Context) error
	ID() string
}

// Pool manages a fixed set of workers draining a bounded queue.
// Tasks report their outcomes themselves; the pool only counts them.
type Pool struct {
	workers   int
	tasks     chan Task
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	stopped   atomic.Bool
	processed atomic.Int64
	errors    atomic.Int64
}

// Config configures the worker pool.
type Config struct {
	Workers   int // Number of workers (default: GOMAXPROCS)
	QueueSize int // Size of task queue (default: workers * 2)
}

// NewPool creates a new worker pool.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan Task, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker pool.
func (p *Pool) Start() {
	if p.started.Swap(true) {
		return // Already started
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case task, ok := <-p.tasks:
			if !ok {
				return
			}

			err := task.Execute(p.ctx)

			p.processed.Add(1)
			if err != nil {
				p.errors.Add(1)
			}
		}
	}
}

// Submit queues a task, blocking while the queue is full.
func (p *Pool) Submit(task Task) error {
	if !p.started.Load() {
		return fmt.Errorf("pool not started")
	}
	if p.stopped.Load() {
		return fmt.Errorf("pool stopped")
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// TrySubmit queues a task without blocking. It returns false when the
// queue is full or the pool is not accepting work.
func (p *Pool) TrySubmit(task Task) bool {
	if !p.started.Load() || p.stopped.Load() {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop stops the pool, abandoning queued tasks. In-flight tasks see
// their context canceled.
func (p *Pool) Stop() {
	p.stopped.Store(true)
	p.cancel()
	p.wg.Wait()
}

// StopWait stops the pool after draining queued tasks. Submitters
// must be quiesced before calling it.
func (p *Pool) StopWait() {
	p.stopped.Store(true)
	close(p.tasks)
	p.wg.Wait()
	p.cancel()
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Processed: p.processed.Load(),
		Errors:    p.errors.Load(),
		Pending:   len(p.tasks),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int
	Processed int64
	Errors    int64
	Pending   int
}

// String returns a string representation of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("workers=%d processed=%d errors=%d pending=%d",
		s.Workers, s.Processed, s.Errors, s.Pending)
}
