package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"messaging-client/internal/logging"
)

var ErrStopped = errors.New("queue: dispatcher stopped")

type Job struct {
	Fn   func()
	Done chan struct{}
}

// Dispatcher runs jobs one at a time in the order they were enqueued.
type Dispatcher struct {
	jobs   chan Job
	stop   chan struct{}
	logger *zap.Logger

	mu      sync.RWMutex
	stopped bool
	once    sync.Once
	wg      sync.WaitGroup
}

func NewDispatcher(queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		jobs:   make(chan Job, queueSize),
		stop:   make(chan struct{}),
		logger: logging.OrNop(logger).Named("queue"),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	d.logger.Debug("dispatcher started")
	for {
		select {
		case job := <-d.jobs:
			d.run(job)
		case <-d.stop:
			// Drain what was accepted before shutdown.
			for {
				select {
				case job := <-d.jobs:
					d.run(job)
				default:
					d.logger.Debug("dispatcher stopped")
					return
				}
			}
		}
	}
}

func (d *Dispatcher) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", zap.Any("panic", r))
		}
		if job.Done != nil {
			close(job.Done)
		}
	}()
	job.Fn()
}

// Enqueue schedules fn. It blocks while the queue is full and returns the
// context error if ctx ends first.
func (d *Dispatcher) Enqueue(ctx context.Context, fn func()) error {
	return d.enqueue(ctx, Job{Fn: fn})
}

// Run enqueues fn and waits for it to finish. It must not be called from a
// job.
func (d *Dispatcher) Run(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := d.enqueue(ctx, Job{Fn: fn, Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs, runs the ones already queued and waits for
// the worker to exit. Safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.stop)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

// Len reports how many jobs are waiting to run.
func (d *Dispatcher) Len() int {
	return len(d.jobs)
}
