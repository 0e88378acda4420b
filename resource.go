// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package asset

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/asset/sched"
	"github.com/gogpu/asset/vfs"
)

// HostLoader is the host-tier extension point implemented by concrete
// asset kinds.
//
// LoadHost decodes the backing byte stream into the asset's in-memory
// representation; UnloadHost discards it. Both are invoked exactly once
// per corresponding job, always on a scheduler worker, never under the
// resource's transition lock.
type HostLoader interface {
	LoadHost(src io.Reader) error
	UnloadHost()
}

// ResourceOption configures a Resource during creation.
type ResourceOption func(*Resource)

// WithRawFile seeds the resource with a pre-resolved backing file,
// skipping the first Resolve.
func WithRawFile(raw vfs.RawFile) ResourceOption {
	return func(r *Resource) {
		r.raw = raw
	}
}

// Resource is the host-tier lifecycle of one loadable entity.
//
// A resource is either file-backed (constructed Unloaded, loaded from
// its path on demand) or virtual (unique identity, permanently Loaded,
// never backed by storage). It is mutated exclusively through Acquire,
// Unload and the jobs they schedule.
//
// Concurrent Acquire calls coalesce into one in-flight load. A load
// requested while an unload is running cannot preempt it (the bytes
// may already be half-released), so the fresh load is chained behind
// the unload's completion instead.
//
// Usage counting justifies residency but never drives unloading:
// Release only decrements, and the owner decides when to call Unload.
// Owners must call Close when done with the resource; a missing Release
// is detected and reported at Close, not silently absorbed.
//
// Thread safety: Resource is safe for concurrent use. Transition
// decisions happen under one per-resource mutex; job bodies run outside
// it, so a slow decode never blocks unrelated transitions.
type Resource struct {
	ctx     *Context
	name    string
	virtual bool
	loader  HostLoader

	// subToken is the resolver invalidation subscription, 0 if none.
	subToken uint64

	mu       sync.Mutex
	state    LoadState
	inflight *sched.Task
	uses     int
	closed   bool

	// gen invalidates completion handlers of superseded jobs.
	gen uint64

	// raw caches the last resolved backing file so repeated loads skip
	// the resolver. Dropped when the resolver reports a change.
	raw vfs.RawFile

	// size is the accounted host bytes while Loaded.
	size int64
}

// NewResource creates a file-backed resource in state Unloaded.
// The loader must be non-nil.
func NewResource(ctx *Context, path string, loader HostLoader, opts ...ResourceOption) *Resource {
	r := &Resource{
		ctx:    ctx,
		name:   path,
		state:  Unloaded,
		loader: loader,
	}
	for _, opt := range opts {
		opt(r)
	}

	if w, ok := ctx.resolver.(vfs.Watchable); ok {
		r.subToken = w.OnInvalidate(r.invalidate)
	}
	return r
}

// NewVirtual creates a virtual resource: unique identity, permanently
// Loaded, never backed by storage and never transitioning. The loader
// may be nil.
func NewVirtual(ctx *Context, loader HostLoader) *Resource {
	return &Resource{
		ctx:     ctx,
		name:    "virtual:" + uuid.NewString(),
		virtual: true,
		state:   Loaded,
		loader:  loader,
	}
}

// Path returns the resource's logical path, or its unique virtual name.
func (r *Resource) Path() string { return r.name }

// Virtual reports whether the resource is virtual.
func (r *Resource) Virtual() bool { return r.virtual }

// State returns the current host-tier state.
func (r *Resource) State() LoadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsLoaded reports whether the host tier is resident.
func (r *Resource) IsLoaded() bool { return r.State() == Loaded }

// IsLoading reports whether a host load is in flight.
func (r *Resource) IsLoading() bool { return r.State() == Loading }

// Uses returns the current usage count.
func (r *Resource) Uses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uses
}

// Acquire registers one usage and returns the future of the in-flight
// (or already complete) load. Acquire never blocks: if the resource is
// Loaded the returned task is already resolved; if a load is running
// the existing task is shared; if an unload is running a fresh load is
// chained behind it.
func (r *Resource) Acquire() *sched.Task {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return sched.Completed(fmt.Errorf("%w: %s", ErrClosed, r.name))
	}
	r.uses++

	switch r.state {
	case Loaded:
		r.mu.Unlock()
		return sched.Completed(nil)

	case Loading:
		t := r.inflight
		r.mu.Unlock()
		return t

	case Unloading:
		// Chain: the unload cannot be preempted; run a fresh load
		// once it finishes.
		return r.chainLoadLocked()

	default: // Unloaded
		return r.startLoadLocked()
	}
}

// Release deregisters one usage. It never blocks and never triggers an
// unload; unloading is owner-driven. Underflow is reported instead of
// leaving a negative counter.
func (r *Resource) Release() {
	r.mu.Lock()
	if r.uses == 0 {
		r.mu.Unlock()
		r.ctx.noteUnderflow()
		r.ctx.log().Error("release without matching acquire", "path", r.name)
		return
	}
	r.uses--
	r.mu.Unlock()
}

// WaitForLoad blocks the calling goroutine until an in-flight load
// completes, re-raising its error. It returns immediately when no load
// is running. Calling it from inside a scheduled job can exhaust the
// worker pool; prefer chaining on the task from Acquire.
func (r *Resource) WaitForLoad() error {
	r.mu.Lock()
	if r.state != Loading {
		r.mu.Unlock()
		return nil
	}
	t := r.inflight
	r.mu.Unlock()
	return t.Wait()
}

// Unload requests that host memory be released. It is driven by the
// owning collaborator, not by the usage count reaching zero.
//
// Returns the unload's future; for a resource that is already Unloaded
// the future is already resolved, and for one already Unloading the
// in-flight future is shared. Requesting unload during a load returns
// ErrLoadInFlight (a load cannot be safely cancelled), and unloading
// with a non-zero usage count returns ErrInUse.
func (r *Resource) Unload() (*sched.Task, error) {
	if r.virtual {
		return nil, fmt.Errorf("%w: %s", ErrVirtual, r.name)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrClosed, r.name)
	}

	switch r.state {
	case Unloaded:
		r.mu.Unlock()
		return sched.Completed(nil), nil

	case Loading:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLoadInFlight, r.name)

	case Unloading:
		t := r.inflight
		r.mu.Unlock()
		return t, nil

	default: // Loaded
		if r.uses > 0 {
			n := r.uses
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s (uses=%d)", ErrInUse, r.name, n)
		}
		return r.startUnloadLocked(), nil
	}
}

// Close synchronously releases any resident host memory, as a safety
// net even if usage counting was mismanaged. Live usages at Close are
// reported as leaks. The resource must not be used afterwards.
func (r *Resource) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	uses := r.uses
	r.uses = 0
	t := r.inflight
	r.mu.Unlock()

	if r.subToken != 0 {
		if w, ok := r.ctx.resolver.(vfs.Watchable); ok {
			w.RemoveInvalidate(r.subToken)
		}
	}

	if uses > 0 {
		r.ctx.noteLeak()
		r.ctx.log().Warn("resource closed with live usages", "path", r.name, "uses", uses)
	}

	// Let an in-flight job settle; its memory must not be yanked out
	// from under a running worker.
	if t != nil {
		_ = t.Wait()
	}

	r.mu.Lock()
	resident := r.state == Loaded && !r.virtual
	if resident {
		r.state = Unloaded
	}
	size := r.size
	r.size = 0
	r.mu.Unlock()

	if resident {
		if r.loader != nil {
			r.loader.UnloadHost()
		}
		r.ctx.accountUnload(size)
	}
	return nil
}

// startLoadLocked transitions Unloaded -> Loading and schedules the
// load job. Called with r.mu held; unlocks it.
func (r *Resource) startLoadLocked() *sched.Task {
	r.gen++
	gen := r.gen
	outer := sched.NewTask()
	r.state = Loading
	r.inflight = outer
	r.mu.Unlock()

	r.scheduleLoad(gen, outer)
	return outer
}

// chainLoadLocked transitions Unloading -> Loading and schedules the
// load job to run after the in-flight unload. Called with r.mu held;
// unlocks it.
func (r *Resource) chainLoadLocked() *sched.Task {
	r.gen++
	gen := r.gen
	outer := sched.NewTask()
	prev := r.inflight
	r.state = Loading
	r.inflight = outer
	r.mu.Unlock()

	r.ctx.log().Debug("chaining load behind in-flight unload", "path", r.name)
	prev.OnDone(func(error) {
		r.scheduleLoad(gen, outer)
	})
	return outer
}

// scheduleLoad runs the host load on the long lane and finalizes the
// state machine before resolving outer. The OnDone hook (not the job
// body) does the finalizing, so a panicking loader still resolves the
// machine instead of leaving it stuck in Loading.
func (r *Resource) scheduleLoad(gen uint64, outer *sched.Task) {
	inner := r.ctx.sched.Schedule(r.loadHost, sched.LaneLong)
	inner.OnDone(func(err error) {
		r.finishLoad(gen, err)
		outer.Complete(err)
	})
}

// loadHost is the load job body. Runs on a worker, outside r.mu.
func (r *Resource) loadHost() error {
	raw, err := r.backingFile()
	if err != nil {
		r.ctx.log().Error("host load failed", "path", r.name, "err", err)
		return err
	}

	src, err := raw.Open()
	if err != nil {
		r.ctx.log().Error("host load failed", "path", r.name, "err", err)
		return fmt.Errorf("asset: open %s: %w", r.name, err)
	}
	defer src.Close()

	if err := r.loader.LoadHost(src); err != nil {
		r.ctx.log().Error("host decode failed", "path", r.name, "err", err)
		return fmt.Errorf("asset: load %s: %w", r.name, err)
	}

	size := raw.Size()
	r.mu.Lock()
	r.size = size
	r.mu.Unlock()
	r.ctx.accountLoad(size)
	return nil
}

// backingFile returns the cached resolved file or resolves the path.
func (r *Resource) backingFile() (vfs.RawFile, error) {
	r.mu.Lock()
	raw := r.raw
	r.mu.Unlock()
	if raw != nil {
		return raw, nil
	}

	if r.loader == nil {
		return nil, fmt.Errorf("asset: %s has no loader", r.name)
	}
	if r.ctx.resolver == nil {
		return nil, fmt.Errorf("%w: %s (no resolver configured)", ErrMissingBacking, r.name)
	}

	raw, err := r.ctx.resolver.Resolve(r.name)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMissingBacking, r.name)
		}
		return nil, fmt.Errorf("asset: resolve %s: %w", r.name, err)
	}

	r.mu.Lock()
	r.raw = raw
	r.mu.Unlock()
	return raw, nil
}

// finishLoad resolves the state machine after a load job. Failure
// returns the resource to Unloaded so the load can be retried; a
// superseded handler (stale gen) changes nothing.
func (r *Resource) finishLoad(gen uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || r.state != Loading {
		return
	}
	if err == nil {
		r.state = Loaded
	} else {
		r.state = Unloaded
	}
	r.inflight = nil
}

// startUnloadLocked transitions Loaded -> Unloading and schedules the
// unload job. Called with r.mu held; unlocks it.
func (r *Resource) startUnloadLocked() *sched.Task {
	r.gen++
	gen := r.gen
	outer := sched.NewTask()
	r.state = Unloading
	r.inflight = outer
	r.mu.Unlock()

	inner := r.ctx.sched.Schedule(r.unloadHost, sched.LaneNormal)
	inner.OnDone(func(err error) {
		r.finishUnload(gen)
		outer.Complete(err)
	})
	return outer
}

// unloadHost is the unload job body.
func (r *Resource) unloadHost() error {
	r.loader.UnloadHost()

	r.mu.Lock()
	size := r.size
	r.size = 0
	r.mu.Unlock()
	r.ctx.accountUnload(size)
	return nil
}

// finishUnload resolves the state machine after an unload job. If a
// chained load has already flipped the state to Loading, the transition
// belongs to the chain and nothing changes here.
func (r *Resource) finishUnload(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || r.state != Unloading {
		return
	}
	r.state = Unloaded
	r.inflight = nil
}

// invalidate drops the cached backing file when the resolver reports a
// change for this path. The next load re-resolves.
func (r *Resource) invalidate(path string) {
	if path != r.name {
		return
	}
	r.mu.Lock()
	r.raw = nil
	r.mu.Unlock()
	r.ctx.log().Debug("cached backing file invalidated", "path", r.name)
}
