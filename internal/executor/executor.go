// Package executor provides the bounded worker pool that runs per-entry compression during archive creation.
package executor

import (
	"io"
	"sync"
)

// Executor abstracts submitting a task and executing it.
type Executor interface {
	// Execute runs the given task, possibly on another goroutine.
	Execute(func())
}

// ExecuteCloser adds io.Closer to Executor.
type ExecuteCloser interface {
	Executor
	io.Closer
}

// New returns an ExecuteCloser backed by up to n goroutines.
//
// When all workers are busy, Execute runs the task on the calling goroutine instead of blocking, so tasks are never
// queued indefinitely nor dropped. If n is not positive, every task runs on the caller. Close waits for the workers
// to drain; Execute must not be called after Close.
func New(n int) ExecuteCloser {
	if n <= 0 {
		return callerRunExecutor{}
	}

	ex := &poolExecutor{tasks: make(chan func(), n)}
	ex.wg.Add(n)
	for range n {
		go func() {
			defer ex.wg.Done()

			for f := range ex.tasks {
				f()
			}
		}()
	}

	return ex
}

type poolExecutor struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func (ex *poolExecutor) Execute(f func()) {
	select {
	case ex.tasks <- f:
	default:
		f()
	}
}

func (ex *poolExecutor) Close() error {
	close(ex.tasks)
	ex.wg.Wait()
	return nil
}

type callerRunExecutor struct{}

func (callerRunExecutor) Execute(f func()) {
	f()
}

func (callerRunExecutor) Close() error {
	return nil
}
