// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vfs

import (
	"errors"
	"io"
)

// ErrNotFound is returned by Resolve when a path has no backing storage.
var ErrNotFound = errors.New("vfs: file not found")

// RawFile is a resolved backing file. Resolving a path is the expensive
// step; a RawFile can be cached and opened repeatedly.
type RawFile interface {
	// Path returns the logical path the file was resolved from.
	Path() string

	// Size returns the decoded size in bytes, or -1 when unknown
	// (compressed backing files report -1).
	Size() int64

	// Open returns a fresh stream over the file's content.
	// The caller closes the stream.
	Open() (io.ReadCloser, error)
}

// Resolver maps logical paths to backing files.
//
// Implementations must be safe for concurrent use; resource loads run
// on scheduler workers.
type Resolver interface {
	Resolve(path string) (RawFile, error)
}

// InvalidateFunc is called when a previously resolved path may have
// changed or disappeared. Callbacks run on the resolver's watch
// goroutine and must not block.
type InvalidateFunc func(path string)

// Watchable is implemented by resolvers that can report backing-file
// changes, letting callers drop cached RawFiles instead of holding
// them stale.
type Watchable interface {
	// OnInvalidate registers fn and returns a subscription token for
	// RemoveInvalidate.
	OnInvalidate(fn InvalidateFunc) uint64

	// RemoveInvalidate drops a subscription.
	RemoveInvalidate(token uint64)
}
