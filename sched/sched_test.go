// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sched

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Construction Tests
// =============================================================================

func TestScheduler_Create(t *testing.T) {
	s := New(4, 0.25)
	defer s.Close()

	if s.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", s.Workers())
	}
	if s.LongWorkers() != 1 {
		t.Errorf("LongWorkers() = %d, want 1", s.LongWorkers())
	}
	if !s.IsRunning() {
		t.Error("scheduler should be running after creation")
	}
}

func TestScheduler_LongWorkerRounding(t *testing.T) {
	tests := []struct {
		workers int
		ratio   float64
		want    int
	}{
		{4, 0.0, 0},
		{4, 0.25, 1},
		{4, 0.3, 2},  // ceil(1.2)
		{4, 1.0, 4},
		{3, 0.5, 2},  // ceil(1.5)
		{1, 0.01, 1}, // ceil(0.01)
		{4, 2.0, 4},  // clamped
		{4, -1.0, 0}, // clamped
	}

	for _, tt := range tests {
		s := New(tt.workers, tt.ratio)
		if got := s.LongWorkers(); got != tt.want {
			t.Errorf("New(%d, %v): LongWorkers() = %d, want %d",
				tt.workers, tt.ratio, got, tt.want)
		}
		s.Close()
	}
}

// =============================================================================
// Scheduling Tests
// =============================================================================

func TestScheduler_RunsJob(t *testing.T) {
	s := New(2, 0)
	defer s.Close()

	var ran atomic.Bool
	task := s.Schedule(func() error {
		ran.Store(true)
		return nil
	}, LaneNormal)

	if err := task.Wait(); err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}
	if !ran.Load() {
		t.Error("job did not run")
	}
}

func TestScheduler_JobError(t *testing.T) {
	s := New(1, 0)
	defer s.Close()

	want := errors.New("decode failed")
	task := s.Schedule(func() error { return want }, LaneNormal)

	if err := task.Wait(); !errors.Is(err, want) {
		t.Errorf("Wait() = %v, want %v", err, want)
	}
}

func TestScheduler_PanicDoesNotKillWorker(t *testing.T) {
	s := New(1, 0)
	defer s.Close()

	bad := s.Schedule(func() error { panic("boom") }, LaneNormal)
	if err := bad.Wait(); err == nil {
		t.Error("panicking job should resolve with an error")
	}

	// The single worker must still be alive to run this.
	ok := s.Schedule(func() error { return nil }, LaneNormal)
	if err := ok.Wait(); err != nil {
		t.Errorf("worker died after panic: %v", err)
	}
}

// Ten long jobs are serviced even while the normal queue stays non-empty
// throughout, with a single dedicated long worker.
func TestScheduler_LongLaneNotStarved(t *testing.T) {
	s := New(4, 0.25)
	defer s.Close()

	const (
		normalJobs = 100
		longJobs   = 10
	)

	var wg sync.WaitGroup
	wg.Add(normalJobs + longJobs)

	var normalDone, longDone atomic.Int32

	for range normalJobs {
		s.Schedule(func() error {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			normalDone.Add(1)
			return nil
		}, LaneNormal)
	}
	for range longJobs {
		s.Schedule(func() error {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
			longDone.Add(1)
			return nil
		}, LaneLong)
	}

	wg.Wait()

	if n := normalDone.Load(); n != normalJobs {
		t.Errorf("normal jobs completed = %d, want %d", n, normalJobs)
	}
	if n := longDone.Load(); n != longJobs {
		t.Errorf("long jobs completed = %d, want %d", n, longJobs)
	}
}

// Long-eligible workers backfill from the normal lane when the long
// lane is empty.
func TestScheduler_LongBackfillsNormal(t *testing.T) {
	// All workers long-eligible: normal jobs still run via backfill.
	s := New(2, 1.0)
	defer s.Close()

	task := s.Schedule(func() error { return nil }, LaneNormal)
	if err := task.Wait(); err != nil {
		t.Errorf("normal job on all-long pool failed: %v", err)
	}
}

func TestScheduler_FIFOWithinLane(t *testing.T) {
	s := New(1, 0)
	defer s.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(10)
	for i := range 10 {
		s.Schedule(func() error {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, LaneNormal)
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, jobs ran out of FIFO order: %v", i, v, order)
		}
	}
}

// =============================================================================
// Shutdown Tests
// =============================================================================

func TestScheduler_ShutdownDrains(t *testing.T) {
	s := New(2, 0.5)

	var done atomic.Int32
	for range 50 {
		s.Schedule(func() error {
			done.Add(1)
			return nil
		}, LaneNormal)
	}

	s.Shutdown(true)

	if n := done.Load(); n != 50 {
		t.Errorf("completed = %d, want 50 (queued jobs must drain on shutdown)", n)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after shutdown")
	}
}

func TestScheduler_ScheduleAfterClose(t *testing.T) {
	s := New(1, 0)
	s.Close()

	task := s.Schedule(func() error { return nil }, LaneNormal)
	if err := task.Wait(); !errors.Is(err, ErrSchedulerClosed) {
		t.Errorf("Wait() = %v, want ErrSchedulerClosed", err)
	}
}

func TestScheduler_CloseTwice(t *testing.T) {
	s := New(1, 0)
	s.Close()
	s.Close() // must not panic or deadlock
}

// =============================================================================
// Task Tests
// =============================================================================

func TestTask_CompletedImmediately(t *testing.T) {
	task := Completed(nil)
	if !task.IsDone() {
		t.Error("Completed task should be done")
	}
	if err := task.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestTask_OnDoneAfterResolve(t *testing.T) {
	task := Completed(errors.New("x"))

	var got error
	task.OnDone(func(err error) { got = err })
	if got == nil {
		t.Error("OnDone on resolved task must run immediately")
	}
}

func TestTask_OnDoneBeforeResolve(t *testing.T) {
	task := NewTask()

	ch := make(chan error, 1)
	task.OnDone(func(err error) { ch <- err })

	select {
	case <-ch:
		t.Fatal("continuation ran before completion")
	case <-time.After(10 * time.Millisecond):
	}

	task.Complete(nil)
	select {
	case err := <-ch:
		if err != nil {
			t.Errorf("continuation got %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestTask_DoubleCompleteIgnored(t *testing.T) {
	task := NewTask()
	task.Complete(nil)
	task.Complete(errors.New("late")) // ignored

	if err := task.Err(); err != nil {
		t.Errorf("Err() = %v, want nil (first completion wins)", err)
	}
}

func TestTask_ConcurrentWaiters(t *testing.T) {
	task := NewTask()

	const waiters = 16
	var wg sync.WaitGroup
	wg.Add(waiters)
	var resolved atomic.Int32

	for range waiters {
		go func() {
			defer wg.Done()
			if task.Wait() == nil {
				resolved.Add(1)
			}
		}()
	}

	task.Complete(nil)
	wg.Wait()

	if n := resolved.Load(); n != waiters {
		t.Errorf("resolved waiters = %d, want %d", n, waiters)
	}
}
