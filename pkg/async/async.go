// Package async provides a small handle-based primitive for running
// long-lived background tasks owned by a parent component. Tasks are
// started with Run, observe cancellation through their context, and
// report their terminal error through the returned handle.
package async

import (
	"context"
	"time"
)

// Task is a handle to a goroutine started with Run.
type Task struct {
	name string
	err  error
	done chan struct{}
}

// Run starts fn in its own goroutine and returns a handle to it.
// The name is used only for error reporting.
func Run(ctx context.Context, name string, fn func(context.Context) error) *Task {
	t := &Task{name: name, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		// Do not invoke fn at all when the context is already canceled.
		select {
		case <-ctx.Done():
			t.err = ctx.Err()
			return
		default:
		}

		t.err = fn(ctx)
	}()

	return t
}

// Name returns the task name given to Run.
func (t *Task) Name() string { return t.name }

// Done returns a channel that is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's terminal error without blocking.
// It returns nil while the task is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// WaitTimeout blocks until the task finishes or the timeout elapses.
// Returns ErrWaitTimeout when the task is still running at expiry.
func (t *Task) WaitTimeout(d time.Duration) error {
	select {
	case <-t.done:
		return t.err
	case <-time.After(d):
		return ErrWaitTimeout
	}
}

// WaitAll waits up to d for every task, returning the first timeout
// encountered. Task errors themselves are not aggregated here; callers
// inspect each handle when they care about individual outcomes.
func WaitAll(d time.Duration, tasks ...*Task) error {
	deadline := time.Now().Add(d)
	for _, t := range tasks {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrWaitTimeout
		}
		if err := t.WaitTimeout(remaining); err == ErrWaitTimeout {
			return ErrWaitTimeout
		}
	}
	return nil
}
