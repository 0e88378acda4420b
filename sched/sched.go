// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Lane selects which queue a job is placed on.
type Lane int

const (
	// LaneNormal is for short compute-bound jobs.
	LaneNormal Lane = iota

	// LaneLong is for jobs expected to block on I/O (asset loads).
	// Only long-eligible workers pull from this lane, so long jobs can
	// never starve the normal lane and vice versa.
	LaneLong

	laneCount
)

// String returns a human-readable lane name.
func (l Lane) String() string {
	switch l {
	case LaneNormal:
		return "normal"
	case LaneLong:
		return "long"
	default:
		return fmt.Sprintf("Lane(%d)", int(l))
	}
}

// Worker idle behavior: spin with Gosched a bounded number of times,
// then sleep so an idle pool does not peg a core.
const (
	idleSpins = 64
	idleSleep = 200 * time.Microsecond
)

// Option configures a Scheduler during creation.
type Option func(*Scheduler)

// WithLogger sets the logger used for job failures and lifecycle events.
// By default the scheduler is silent.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler is a fixed-size worker pool with two FIFO lanes.
//
// Construction with N workers and a long-running ratio r dedicates the
// first ceil(N*r) workers to draining the long lane first; they backfill
// from the normal lane when the long lane is empty. The remaining
// workers service only the normal lane.
//
// A dequeued job runs to completion on its worker; there is no
// preemption and no per-job cancellation. Queued jobs can only be
// abandoned by shutting the scheduler down.
//
// Thread safety: Scheduler is safe for concurrent use.
type Scheduler struct {
	queues [laneCount]jobQueue

	workers     int
	longWorkers int

	// closing stops workers once their lanes drain.
	closing atomic.Bool

	// running gates Schedule.
	running atomic.Bool

	wg     sync.WaitGroup
	logger *slog.Logger
}

type job struct {
	fn   func() error
	task *Task
}

// New creates a scheduler with the given worker count and long-running
// ratio in [0,1]. If workers is 0 or negative, GOMAXPROCS is used.
// Workers start immediately.
func New(workers int, longRatio float64, opts ...Option) *Scheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if longRatio < 0 {
		longRatio = 0
	}
	if longRatio > 1 {
		longRatio = 1
	}
	longWorkers := int(math.Ceil(float64(workers) * longRatio))
	if longWorkers > workers {
		longWorkers = workers
	}

	s := &Scheduler{
		workers:     workers,
		longWorkers: longWorkers,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.running.Store(true)
	s.wg.Add(workers)
	for i := range workers {
		go s.worker(i)
	}
	return s
}

// Schedule enqueues fn on the given lane and returns its future.
// Schedule never blocks. If the scheduler is closed, the job does not
// run and the returned task resolves with ErrSchedulerClosed.
func (s *Scheduler) Schedule(fn func() error, lane Lane) *Task {
	if fn == nil || lane < 0 || lane >= laneCount {
		return Completed(fmt.Errorf("sched: invalid job (fn=%v lane=%d)", fn != nil, lane))
	}
	if !s.running.Load() {
		return Completed(ErrSchedulerClosed)
	}

	t := NewTask()
	s.queues[lane].push(job{fn: fn, task: t})
	return t
}

// worker is the main loop for one worker goroutine. Workers with
// id < longWorkers are long-eligible.
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	long := id < s.longWorkers
	idle := 0

	for {
		j, ok := s.dequeue(long)
		if !ok {
			if s.closing.Load() && s.drained(long) {
				return
			}
			idle++
			if idle <= idleSpins {
				runtime.Gosched()
			} else {
				time.Sleep(idleSleep)
			}
			continue
		}
		idle = 0
		s.run(j)
	}
}

// dequeue pops the next job for a worker, honoring lane priority.
func (s *Scheduler) dequeue(long bool) (job, bool) {
	if long {
		if j, ok := s.queues[LaneLong].pop(); ok {
			return j, true
		}
	}
	return s.queues[LaneNormal].pop()
}

// drained reports whether every lane this worker services is empty.
// Long-ineligible workers must also wait for the normal lane only;
// the long lane is drained by long-eligible workers.
func (s *Scheduler) drained(long bool) bool {
	if long && s.queues[LaneLong].len() > 0 {
		return false
	}
	return s.queues[LaneNormal].len() == 0
}

// run executes one job, converting a panic into the task's error so a
// misbehaving job cannot take the worker down.
func (s *Scheduler) run(j job) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sched: job panicked: %v", r)
				s.logger.Error("job panicked", "panic", r)
			}
		}()
		err = j.fn()
	}()
	if err != nil {
		s.logger.Debug("job failed", "err", err)
	}
	j.task.Complete(err)
}

// Shutdown stops the scheduler. New jobs are rejected immediately;
// queued jobs still run. If wait is true, Shutdown blocks until every
// worker has drained its lanes and exited.
func (s *Scheduler) Shutdown(wait bool) {
	if !s.running.CompareAndSwap(true, false) {
		if wait {
			s.wg.Wait()
		}
		return
	}
	s.closing.Store(true)
	if wait {
		s.wg.Wait()
		s.sweep()
	}
}

// sweep runs jobs that slipped into a queue while workers were already
// exiting. Runs on the shutdown goroutine after all workers are gone.
func (s *Scheduler) sweep() {
	for i := range s.queues {
		for {
			j, ok := s.queues[i].pop()
			if !ok {
				break
			}
			s.run(j)
		}
	}
}

// Close shuts the scheduler down and waits for workers to exit.
// Close is safe to call multiple times.
func (s *Scheduler) Close() {
	s.Shutdown(true)
}

// Workers returns the total worker count.
func (s *Scheduler) Workers() int { return s.workers }

// LongWorkers returns the number of long-eligible workers.
func (s *Scheduler) LongWorkers() int { return s.longWorkers }

// IsRunning reports whether the scheduler is accepting work.
func (s *Scheduler) IsRunning() bool { return s.running.Load() }

// QueuedJobs returns the approximate number of jobs waiting in both lanes.
func (s *Scheduler) QueuedJobs() int {
	n := 0
	for i := range s.queues {
		n += s.queues[i].len()
	}
	return n
}

// jobQueue is a mutex-protected FIFO. The slice is compacted when the
// head index grows past half the backing array.
type jobQueue struct {
	mu   sync.Mutex
	jobs []job
	head int
}

func (q *jobQueue) push(j job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
}

func (q *jobQueue) pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.jobs) {
		return job{}, false
	}
	j := q.jobs[q.head]
	q.jobs[q.head] = job{}
	q.head++

	if q.head > len(q.jobs)/2 && q.head > 32 {
		n := copy(q.jobs, q.jobs[q.head:])
		q.jobs = q.jobs[:n]
		q.head = 0
	}
	return j, true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) - q.head
}
