package server

import (
	"context"
	"fmt"
	"runtime/pprof"
	"sync"

	"github.com/marmos91/dittonet/internal/logger"
)

// queueFactor sizes the task queue relative to the number of workers.
const queueFactor = 64

// Executor is a fixed pool of named workers running I/O completions.
//
// Execute blocks only while the queue is full. Once Close is called Execute
// returns ErrExecutorClosed; queued tasks still run before the workers exit.
type Executor struct {
	tasks chan func()
	names []string

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// WorkerName returns the name of the 1-based worker index in a pool of
// threads workers, e.g. "TCP-8080-Thread-07" for index 7 of 16. The index
// is zero-padded to 1 digit up to 10 workers, 2 up to 100, 3 up to 1000
// and 4 beyond.
func WorkerName(prefix string, index, threads int) string {
	width := 4
	switch {
	case threads <= 10:
		width = 1
	case threads <= 100:
		width = 2
	case threads <= 1000:
		width = 3
	}
	return fmt.Sprintf("%s-Thread-%0*d", prefix, width, index)
}

// NewExecutor starts threads workers named after prefix. Each worker carries
// its name as the "worker" pprof label.
func NewExecutor(prefix string, threads int) *Executor {
	if threads <= 0 {
		panic("executor: threads must be positive")
	}

	e := &Executor{
		tasks: make(chan func(), threads*queueFactor),
		names: make([]string, threads),
	}

	for i := range threads {
		name := WorkerName(prefix, i+1, threads)
		e.names[i] = name
		e.wg.Add(1)
		go pprof.Do(context.Background(), pprof.Labels("worker", name), func(context.Context) {
			defer e.wg.Done()
			for task := range e.tasks {
				run(name, task)
			}
		})
	}

	return e
}

// run executes one task and contains its panic so the worker survives.
func run(worker string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in worker %s: %v", worker, r)
		}
	}()
	task()
}

// Execute queues task for a worker.
func (e *Executor) Execute(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrExecutorClosed
	}
	e.tasks <- task
	return nil
}

// Names returns the worker names in index order.
func (e *Executor) Names() []string {
	return append([]string(nil), e.names...)
}

// Pending is the number of queued tasks.
func (e *Executor) Pending() int {
	return len(e.tasks)
}

// Close stops accepting tasks. Queued and running tasks complete. Calling
// Close more than once is safe.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.tasks)
}

// Wait blocks until ctx is done or every worker has exited after Close.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
