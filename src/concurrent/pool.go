package concurrent

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
)

// WorkerPool bounds how many functions run at once.
type WorkerPool struct {
	maxWorkers int
	sem        chan struct{}
}

// NewWorkerPool creates a new worker pool with the specified max workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		sem:        make(chan struct{}, maxWorkers),
	}
}

// Do runs fn once a worker slot is free, or returns ctx.Err() if ctx ends first.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// Pool runs fire-and-forget tasks on a bounded number of workers with a bounded backlog.
// Submission never blocks: Go reports false when the backlog is full or the pool is closed.
type Pool struct {
	workers *WorkerPool
	slots   chan struct{}
	logger  *log.Logger

	mu      sync.Mutex
	closed  bool
	pending int
	// idle is closed whenever pending drops to zero.
	idle chan struct{}
}

// NewPool creates a pool running at most workers tasks at once with up to
// backlog tasks waiting.
func NewPool(workers, backlog int) *Pool {
	wp := NewWorkerPool(workers)
	if backlog < 0 {
		backlog = 0
	}
	return &Pool{
		workers: wp,
		slots:   make(chan struct{}, wp.maxWorkers+backlog),
		logger:  log.New(os.Stderr, "pool: ", log.LstdFlags),
	}
}

// WithLogger overrides the logger used for recovered panics.
func (p *Pool) WithLogger(l *log.Logger) *Pool {
	if l != nil {
		p.logger = l
	}
	return p
}

// Go schedules fn. The task receives a context detached from ctx's cancellation
// but carrying its values, so it may outlive the request that submitted it.
func (p *Pool) Go(ctx context.Context, fn func(context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	select {
	case p.slots <- struct{}{}:
	default:
		p.mu.Unlock()
		return false
	}
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
	p.mu.Unlock()

	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer p.done()
		defer func() { <-p.slots }()
		_ = p.workers.Do(context.Background(), func() error {
			p.run(taskCtx, fn)
			return nil
		})
	}()
	return true
}

func (p *Pool) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

func (p *Pool) run(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("warn: task panicked: %v", r)
		}
	}()
	fn(ctx)
}

// Pending reports scheduled tasks that have not finished.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Wait blocks until no task is pending or ctx ends. Tasks may keep being
// scheduled while Wait runs; it returns at the first moment the pool is idle.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	if p.pending == 0 {
		p.mu.Unlock()
		return nil
	}
	idle := p.idle
	p.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %d pending tasks: %w", p.Pending(), ctx.Err())
	}
}

// Close stops accepting tasks and waits for the scheduled ones.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Wait(ctx)
}
