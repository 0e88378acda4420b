// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package asset

import (
	"fmt"
	"sync"

	"github.com/gogpu/asset/sched"
)

// DeviceLoader is the device-tier extension point implemented by
// GPU-backed asset kinds.
//
// LoadDevice uploads the host-tier representation to device memory; it
// runs while the job holds a host-tier usage, so the host copy is
// resident for its whole duration. UnloadDevice releases the device
// copy and must not touch the host tier. Both run on scheduler workers,
// never under a transition lock.
type DeviceLoader interface {
	LoadDevice() error
	UnloadDevice()
}

// DeviceResource layers a device-memory lifecycle over a host Resource.
//
// The device tier is the same four-state machine with its own usage
// counter and in-flight future. Its load is a composite: acquire the
// host tier (a synthetic usage owned by the job), upload once the host
// copy is resident, then release the host tier exactly once, whether
// the upload succeeded or not. A device reload chained behind a device
// unload re-acquires the host tier from scratch.
//
// Acquire, Release, WaitForLoad, Unload, State, IsLoaded, IsLoading and
// Uses operate on the device tier; the host tier is reached through
// Host(). Close releases both tiers.
//
// Thread safety: DeviceResource is safe for concurrent use.
type DeviceResource struct {
	*Resource

	dev DeviceLoader

	dmu     sync.Mutex
	dstate  LoadState
	dflight *sched.Task
	duses   int
	dgen    uint64
	dclosed bool
}

// NewDeviceResource creates a file-backed, GPU-backed resource with
// both tiers Unloaded.
func NewDeviceResource(ctx *Context, path string, host HostLoader, dev DeviceLoader, opts ...ResourceOption) *DeviceResource {
	return &DeviceResource{
		Resource: NewResource(ctx, path, host, opts...),
		dev:      dev,
		dstate:   Unloaded,
	}
}

// Host returns the underlying host-tier resource.
func (d *DeviceResource) Host() *Resource { return d.Resource }

// State returns the current device-tier state.
func (d *DeviceResource) State() LoadState {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	return d.dstate
}

// IsLoaded reports whether the device tier is resident.
func (d *DeviceResource) IsLoaded() bool { return d.State() == Loaded }

// IsLoading reports whether a device load is in flight.
func (d *DeviceResource) IsLoading() bool { return d.State() == Loading }

// Uses returns the device-tier usage count.
func (d *DeviceResource) Uses() int {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	return d.duses
}

// Acquire registers one device-tier usage and returns the future of the
// in-flight (or already complete) device load. Never blocks. The same
// coalescing and chaining rules as the host tier apply.
func (d *DeviceResource) Acquire() *sched.Task {
	d.dmu.Lock()
	if d.dclosed {
		d.dmu.Unlock()
		return sched.Completed(fmt.Errorf("%w: %s", ErrClosed, d.Path()))
	}
	d.duses++

	switch d.dstate {
	case Loaded:
		d.dmu.Unlock()
		return sched.Completed(nil)

	case Loading:
		t := d.dflight
		d.dmu.Unlock()
		return t

	case Unloading:
		return d.chainDeviceLoadLocked()

	default: // Unloaded
		return d.startDeviceLoadLocked()
	}
}

// Release deregisters one device-tier usage. Underflow is reported.
func (d *DeviceResource) Release() {
	d.dmu.Lock()
	if d.duses == 0 {
		d.dmu.Unlock()
		d.ctx.noteUnderflow()
		d.ctx.log().Error("device release without matching acquire", "path", d.Path())
		return
	}
	d.duses--
	d.dmu.Unlock()
}

// WaitForLoad blocks until an in-flight device load completes,
// re-raising its error; returns immediately when none is running.
func (d *DeviceResource) WaitForLoad() error {
	d.dmu.Lock()
	if d.dstate != Loading {
		d.dmu.Unlock()
		return nil
	}
	t := d.dflight
	d.dmu.Unlock()
	return t.Wait()
}

// Unload requests release of device memory. The host tier is not
// touched. Same contract as the host-tier Unload.
func (d *DeviceResource) Unload() (*sched.Task, error) {
	d.dmu.Lock()
	if d.dclosed {
		d.dmu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrClosed, d.Path())
	}

	switch d.dstate {
	case Unloaded:
		d.dmu.Unlock()
		return sched.Completed(nil), nil

	case Loading:
		d.dmu.Unlock()
		return nil, fmt.Errorf("%w: %s (device)", ErrLoadInFlight, d.Path())

	case Unloading:
		t := d.dflight
		d.dmu.Unlock()
		return t, nil

	default: // Loaded
		if d.duses > 0 {
			n := d.duses
			d.dmu.Unlock()
			return nil, fmt.Errorf("%w: %s (device uses=%d)", ErrInUse, d.Path(), n)
		}
		return d.startDeviceUnloadLocked(), nil
	}
}

// Close synchronously releases both tiers: the device copy first, then
// the host copy via the embedded Resource's Close.
func (d *DeviceResource) Close() error {
	d.dmu.Lock()
	if d.dclosed {
		d.dmu.Unlock()
		return d.Resource.Close()
	}
	d.dclosed = true
	uses := d.duses
	d.duses = 0
	t := d.dflight
	d.dmu.Unlock()

	if uses > 0 {
		d.ctx.noteLeak()
		d.ctx.log().Warn("device resource closed with live usages", "path", d.Path(), "uses", uses)
	}

	if t != nil {
		_ = t.Wait()
	}

	d.dmu.Lock()
	resident := d.dstate == Loaded
	if resident {
		d.dstate = Unloaded
	}
	d.dmu.Unlock()

	if resident && d.dev != nil {
		d.dev.UnloadDevice()
	}
	return d.Resource.Close()
}

// startDeviceLoadLocked transitions Unloaded -> Loading and kicks off
// the composite load. Called with d.dmu held; unlocks it.
func (d *DeviceResource) startDeviceLoadLocked() *sched.Task {
	d.dgen++
	gen := d.dgen
	outer := sched.NewTask()
	d.dstate = Loading
	d.dflight = outer
	d.dmu.Unlock()

	d.runDeviceLoad(gen, outer)
	return outer
}

// chainDeviceLoadLocked transitions Unloading -> Loading; the composite
// load (including a fresh host acquisition) runs after the in-flight
// device unload. Called with d.dmu held; unlocks it.
func (d *DeviceResource) chainDeviceLoadLocked() *sched.Task {
	d.dgen++
	gen := d.dgen
	outer := sched.NewTask()
	prev := d.dflight
	d.dstate = Loading
	d.dflight = outer
	d.dmu.Unlock()

	d.ctx.log().Debug("chaining device load behind in-flight unload", "path", d.Path())
	prev.OnDone(func(error) {
		d.runDeviceLoad(gen, outer)
	})
	return outer
}

// runDeviceLoad is the composite device load, built from continuations
// so no worker ever blocks waiting for the host tier:
//
//  1. acquire the host tier (synthetic usage owned by this job)
//  2. once the host copy is resident, schedule the upload
//  3. release the host tier exactly once, success or failure
//  4. finalize the device state machine and resolve outer
func (d *DeviceResource) runDeviceLoad(gen uint64, outer *sched.Task) {
	host := d.Resource.Acquire()
	host.OnDone(func(hostErr error) {
		if hostErr != nil {
			d.Resource.Release()
			err := fmt.Errorf("asset: device load %s: host tier: %w", d.Path(), hostErr)
			d.finishDeviceLoad(gen, err)
			outer.Complete(err)
			return
		}

		inner := d.ctx.sched.Schedule(d.dev.LoadDevice, sched.LaneNormal)
		inner.OnDone(func(err error) {
			// The synthetic host usage is released here, not in the
			// job body, so a panicking upload or a rejected job still
			// releases it exactly once.
			d.Resource.Release()
			if err != nil {
				d.ctx.log().Error("device upload failed", "path", d.Path(), "err", err)
			}
			d.finishDeviceLoad(gen, err)
			outer.Complete(err)
		})
	})
}

// finishDeviceLoad resolves the device state machine after a load.
// Failure returns the tier to Unloaded, retryable.
func (d *DeviceResource) finishDeviceLoad(gen uint64, err error) {
	d.dmu.Lock()
	defer d.dmu.Unlock()

	if d.dgen != gen || d.dstate != Loading {
		return
	}
	if err == nil {
		d.dstate = Loaded
	} else {
		d.dstate = Unloaded
	}
	d.dflight = nil
}

// startDeviceUnloadLocked transitions Loaded -> Unloading and schedules
// the unload job. Called with d.dmu held; unlocks it.
func (d *DeviceResource) startDeviceUnloadLocked() *sched.Task {
	d.dgen++
	gen := d.dgen
	outer := sched.NewTask()
	d.dstate = Unloading
	d.dflight = outer
	d.dmu.Unlock()

	inner := d.ctx.sched.Schedule(func() error {
		d.dev.UnloadDevice()
		return nil
	}, sched.LaneNormal)
	inner.OnDone(func(err error) {
		d.finishDeviceUnload(gen)
		outer.Complete(err)
	})
	return outer
}

// finishDeviceUnload resolves the device state machine after an unload,
// unless a chained load already owns the transition.
func (d *DeviceResource) finishDeviceUnload(gen uint64) {
	d.dmu.Lock()
	defer d.dmu.Unlock()

	if d.dgen != gen || d.dstate != Unloading {
		return
	}
	d.dstate = Unloaded
	d.dflight = nil
}
