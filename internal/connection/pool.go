package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Task is a unit of work run on a pool worker.
type Task func(ctx context.Context) error

// Future is the handle of a submitted task.
type Future struct {
	name   string
	task   Task
	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool
	done      chan struct{}
	err       error
}

// Name returns the task name given to Submit.
func (f *Future) Name() string {
	return f.name
}

// Cancel requests cancellation. A task that has not started is skipped; a
// running task sees its context cancelled and must return on its own.
func (f *Future) Cancel() {
	f.cancelled.Store(true)
	f.cancel()
}

// Cancelled reports whether Cancel was called.
func (f *Future) Cancelled() bool {
	return f.cancelled.Load()
}

// Done is closed when the task has finished or was skipped.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task result, or nil if it has not finished.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) run() {
	if f.cancelled.Load() || f.ctx.Err() != nil {
		f.finish(ErrTaskCancelled)
		return
	}
	f.finish(f.task(f.ctx))
}

func (f *Future) finish(err error) {
	f.err = err
	f.cancel()
	close(f.done)
}

// Pool runs tasks on a fixed number of long-lived workers.
type Pool struct {
	size   int
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	queue  chan *Future
	exited chan struct{}
}

// NewPool starts size workers. Cancelling ctx closes the pool.
func NewPool(ctx context.Context, size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		size:   size,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan *Future, size*4),
		exited: make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		close(p.exited)
	}()
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues a task. The returned future's context is derived from the
// pool's context.
func (p *Pool) Submit(name string, task Task) (*Future, error) {
	ctx, cancel := context.WithCancel(p.ctx)
	f := &Future{
		name:   name,
		task:   task,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		cancel()
		return nil, ErrPoolClosed
	}

	select {
	case p.queue <- f:
		return f, nil
	default:
		cancel()
		return nil, ErrPoolFull
	}
}

// Close cancels every task and stops accepting new ones. It does not wait
// for running tasks; use Wait for that.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	// Skip anything still queued.
	for {
		select {
		case f := <-p.queue:
			f.finish(ErrTaskCancelled)
		default:
			return
		}
	}
}

// Exited reports whether every worker has returned.
func (p *Pool) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Wait blocks until all workers have exited or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case f := <-p.queue:
			f.run()
			if err := f.err; err != nil && !errors.Is(err, ErrTaskCancelled) && !errors.Is(err, context.Canceled) {
				p.logger.Warn("task failed", "task", f.name, "worker", id, "error", err)
			}
		}
	}
}
