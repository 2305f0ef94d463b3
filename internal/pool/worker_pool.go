// Package pool provides a bounded worker pool for controlled concurrency
// against rate-limited external services.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrPoolClosed = errors.New("pool is closed")

// Task represents a unit of work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of worker goroutines.
// Workers are spawned at construction; Submit blocks while all workers
// are busy, which is the desired backpressure when the tasks wrap calls
// to rate-limited services.
type WorkerPool struct {
	taskQueue chan taskWrapper
	closed    atomic.Bool
	wg        sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// NewWorkerPool creates a pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &WorkerPool{
		taskQueue: make(chan taskWrapper),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task and returns a channel that yields its error.
// Blocks until a worker picks the task up or ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, task Task) (<-chan error, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	wrapper := taskWrapper{
		task:   task,
		ctx:    ctx,
		result: make(chan error, 1),
	}

	select {
	case p.taskQueue <- wrapper:
		p.submitted.Add(1)
		return wrapper.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitWait submits a task and waits for completion.
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	result, err := p.Submit(ctx, task)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for wrapper := range p.taskQueue {
		err := p.executeTask(wrapper)
		wrapper.result <- err
		close(wrapper.result)

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("task panicked")
		}
	}()

	if wrapper.ctx.Err() != nil {
		return wrapper.ctx.Err()
	}
	return wrapper.task(wrapper.ctx)
}

// Close closes the pool and waits for all workers to finish.
func (p *WorkerPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
