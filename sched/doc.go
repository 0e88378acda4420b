// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sched provides the fixed-size worker pool that runs asset
// load and unload jobs.
//
// The pool has two FIFO lanes: a normal lane for short jobs and a long
// lane for jobs that block on I/O. A configurable fraction of the
// workers drains the long lane with priority and backfills from the
// normal lane when idle; the remaining workers never touch the long
// lane. This keeps slow file reads from starving short jobs and short
// jobs from queueing behind slow ones.
//
// Scheduled work is represented by a Task, a one-shot future carrying
// the job's error. Tasks support blocking waits and non-blocking
// continuations; lifecycle code builds composite operations out of
// continuations rather than blocking a worker inside another job.
//
//	s := sched.New(4, 0.25)
//	defer s.Close()
//
//	t := s.Schedule(func() error { return loadBytes() }, sched.LaneLong)
//	if err := t.Wait(); err != nil {
//	    // ...
//	}
package sched
