// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"errors"
	"sync"
)

// ErrSchedulerClosed is returned by tasks rejected because the scheduler
// is no longer accepting work.
var ErrSchedulerClosed = errors.New("sched: scheduler is closed")

// Task is the future for a scheduled unit of work.
//
// A Task resolves exactly once, with a nil error on success or with the
// job's error (including recovered panics) on failure. Waiters observe
// the result through Wait, Done or OnDone.
//
// Thread safety: Task is safe for concurrent use.
type Task struct {
	mu   sync.Mutex
	done chan struct{}
	err  error

	// resolved is set under mu when the task completes.
	resolved bool

	// callbacks run after resolution, outside mu, in registration order.
	callbacks []func(error)
}

// NewTask creates an unresolved task to be completed by the caller.
//
// Composite operations (a job chained onto another job's completion)
// hand out a manual task as their future and call Complete when the
// whole chain has finished.
func NewTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Completed returns a task already resolved with err.
// Used for operations that are satisfied without scheduling any work.
func Completed(err error) *Task {
	t := NewTask()
	t.Complete(err)
	return t
}

// Complete resolves the task with err and runs pending continuations.
// Only the first call has any effect; later calls are ignored.
func (t *Task) Complete(err error) {
	t.mu.Lock()
	if t.resolved {
		t.mu.Unlock()
		return
	}
	t.resolved = true
	t.err = err
	cbs := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(err)
	}
}

// Done returns a channel closed when the task resolves.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks the calling goroutine until the task resolves and returns
// the task's error. Calling Wait from inside another scheduled job can
// exhaust the worker pool; prefer OnDone for job-internal dependencies.
func (t *Task) Wait() error {
	<-t.done
	return t.Err()
}

// IsDone reports whether the task has resolved.
func (t *Task) IsDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

// Err returns the task's error. It is nil both for a task that succeeded
// and for one that has not resolved yet; use IsDone or Done to tell the
// two apart.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// OnDone registers a continuation invoked with the task's error once it
// resolves. If the task is already resolved, fn runs immediately on the
// calling goroutine; otherwise it runs on the goroutine that completes
// the task. Continuations must not block.
func (t *Task) OnDone(fn func(error)) {
	t.mu.Lock()
	if !t.resolved {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	err := t.err
	t.mu.Unlock()

	fn(err)
}
