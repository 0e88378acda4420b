// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vfs resolves logical asset paths to backing files.
//
// The lifecycle layer consumes two small interfaces: Resolver turns a
// path into a RawFile, and RawFile opens byte streams over the backing
// content. Dir is the default implementation, rooted at a directory on
// the local filesystem, with transparent lz4/xz decompression for
// compressed asset variants and optional fsnotify-based invalidation
// so callers can drop cached RawFiles when files change on disk.
package vfs
