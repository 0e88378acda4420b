// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package asset

import "errors"

// Lifecycle errors.
var (
	// ErrMissingBacking indicates the resource's path did not resolve
	// to backing storage at load time. The resource returns to
	// Unloaded, so the load can be retried.
	ErrMissingBacking = errors.New("asset: missing backing resource")

	// ErrLoadInFlight is returned by Unload while a load is running.
	// A load cannot be safely cancelled; wait for it to finish first.
	ErrLoadInFlight = errors.New("asset: cannot unload while a load is in flight")

	// ErrInUse is returned by Unload while the usage count is above
	// zero. Unloading memory that consumers still reference is a
	// programming error, not a queued request.
	ErrInUse = errors.New("asset: resource is in use")

	// ErrVirtual is returned by Unload on a virtual resource. Virtual
	// resources are permanently Loaded and never transition.
	ErrVirtual = errors.New("asset: virtual resources never unload")

	// ErrClosed is returned for operations on a closed resource.
	ErrClosed = errors.New("asset: resource is closed")
)
