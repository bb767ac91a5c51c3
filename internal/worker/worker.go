package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrStopped = errors.New("worker pool stopped")

type Job interface{}

type ProcessFunc func(ctx context.Context, job Job) error

// Handle reports the completion of one submitted job.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Completed returns a handle for work that already ran outside the pool.
func Completed(err error) *Handle {
	h := newHandle()
	h.finish(err)
	return h
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Wait blocks until the job ran or ctx is done. A finished job reports its
// result even when ctx is already done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	default:
	}
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type queued struct {
	job    Job
	handle *Handle
}

// WorkerPool is a bounded queue drained by a fixed number of workers.
// Submit blocks while the queue is full.
type WorkerPool struct {
	numWorkers int
	jobs       chan queued
	processor  ProcessFunc
	wg         sync.WaitGroup

	quit     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

func NewWorkerPool(numWorkers int, bufferSize int, processor ProcessFunc) *WorkerPool {
	return &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make(chan queued, bufferSize),
		processor:  processor,
		quit:       make(chan struct{}),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-wp.jobs:
			if !ok {
				return
			}
			q.handle.finish(wp.process(ctx, id, q.job))
		}
	}
}

func (wp *WorkerPool) process(ctx context.Context, id int, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d: job panicked: %v", id, r)
		}
	}()
	return wp.processor(ctx, job)
}

// Submit queues job. It returns ErrStopped once Stop was called and
// ctx.Err() if ctx ends while the queue is full.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) (*Handle, error) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return nil, ErrStopped
	}

	q := queued{job: job, handle: newHandle()}
	select {
	case wp.jobs <- q:
		return q.handle, nil
	case <-wp.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len is the number of jobs waiting in the queue.
func (wp *WorkerPool) Len() int {
	return len(wp.jobs)
}

// Stop closes the queue and waits for the workers. Jobs still queued when
// the workers exit are finished with ErrStopped.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.quit)

		wp.mu.Lock()
		wp.closed = true
		close(wp.jobs)
		wp.mu.Unlock()

		wp.wg.Wait()
		for q := range wp.jobs {
			q.handle.finish(ErrStopped)
		}
	})
}
