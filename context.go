// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package asset

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/docker/go-units"

	"github.com/gogpu/asset/sched"
	"github.com/gogpu/asset/vfs"
)

// DefaultLongRatio is the fraction of scheduler workers dedicated to
// the long-running lane when the Context creates its own scheduler.
const DefaultLongRatio = 0.25

// Context carries the collaborators shared by a family of resources:
// the scheduler that runs load/unload jobs, the resolver that maps
// paths to backing files, the logger, and debug accounting.
//
// A Context replaces process-wide singletons: construct one at startup
// and pass it to resource constructors. Tests construct their own.
//
// Thread safety: Context is safe for concurrent use.
type Context struct {
	sched    *sched.Scheduler
	ownSched bool
	resolver vfs.Resolver
	logger   *slog.Logger

	// budget is a warn-only ceiling for resident host bytes; 0 means
	// unlimited.
	budget int64

	hostBytes  atomic.Int64
	underflows atomic.Int64
	leaked     atomic.Int64
}

// NewContext creates a Context. Without WithScheduler, an internal
// scheduler is created with GOMAXPROCS workers and DefaultLongRatio,
// and is shut down by Close.
func NewContext(opts ...ContextOption) *Context {
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx := &Context{
		sched:    o.scheduler,
		resolver: o.resolver,
		logger:   o.logger,
		budget:   o.budgetBytes,
	}

	if o.budgetSpec != "" {
		n, err := units.RAMInBytes(o.budgetSpec)
		if err != nil {
			ctx.log().Warn("invalid host budget, ignoring", "budget", o.budgetSpec, "err", err)
		} else {
			ctx.budget = n
		}
	}

	if ctx.sched == nil {
		ctx.sched = sched.New(0, DefaultLongRatio, sched.WithLogger(ctx.log()))
		ctx.ownSched = true
	}
	return ctx
}

// Scheduler returns the context's scheduler.
func (c *Context) Scheduler() *sched.Scheduler { return c.sched }

// Resolver returns the context's resolver, or nil if none was set.
func (c *Context) Resolver() vfs.Resolver { return c.resolver }

// Close shuts down the internal scheduler, if the Context created one.
// Schedulers passed in via WithScheduler are left to their owner.
func (c *Context) Close() {
	if c.ownSched {
		c.sched.Close()
	}
}

// log returns the context logger, falling back to the package logger so
// SetLogger takes effect on contexts created without WithLogger.
func (c *Context) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return Logger()
}

// accountLoad records size freshly resident host bytes.
func (c *Context) accountLoad(size int64) {
	if size <= 0 {
		return
	}
	total := c.hostBytes.Add(size)
	if c.budget > 0 && total > c.budget {
		c.log().Warn("host memory budget exceeded",
			"resident", units.BytesSize(float64(total)),
			"budget", units.BytesSize(float64(c.budget)))
	}
}

// accountUnload records size host bytes released.
func (c *Context) accountUnload(size int64) {
	if size > 0 {
		c.hostBytes.Add(-size)
	}
}

func (c *Context) noteUnderflow() { c.underflows.Add(1) }
func (c *Context) noteLeak()      { c.leaked.Add(1) }

// Stats is a snapshot of the context's debug counters. Missing releases
// show up here instead of being silently absorbed: underflows count
// Release calls without a matching Acquire, and leaks count resources
// closed while usages were still live.
type Stats struct {
	// HostBytes is the resident host memory attributed to loads.
	HostBytes int64

	// ReleaseUnderflows counts Release calls with a zero usage count.
	ReleaseUnderflows int64

	// LeakedResources counts resources closed with live usages.
	LeakedResources int64
}

// Stats returns a snapshot of the debug counters.
func (c *Context) Stats() Stats {
	return Stats{
		HostBytes:         c.hostBytes.Load(),
		ReleaseUnderflows: c.underflows.Load(),
		LeakedResources:   c.leaked.Load(),
	}
}

// String formats the snapshot human-readably.
func (s Stats) String() string {
	return fmt.Sprintf("host=%s underflows=%d leaked=%d",
		units.BytesSize(float64(s.HostBytes)), s.ReleaseUnderflows, s.LeakedResources)
}
