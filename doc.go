// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package asset provides the reference-counted lifecycle for loadable
// resources and the scheduling glue that moves them into host memory
// and, for GPU-backed assets, on into device memory.
//
// # Overview
//
// Every resource is a small state machine over {Unloaded, Loading,
// Loaded, Unloading}, driven by usage-counted Acquire/Release and by
// owner-driven Unload. Loading work runs on a shared worker pool
// (package sched); concurrent acquires coalesce into a single in-flight
// load, and a load requested while an unload is running is chained
// behind it rather than racing the release of memory.
//
// GPU-backed assets add a second, dependent state machine of the same
// shape: the device tier. A device load acquires the host tier for the
// duration of the upload and releases it afterwards, so the host bytes
// are always resident while the upload callback runs.
//
// # Quick Start
//
//	dir, _ := vfs.NewDir("assets")
//	ctx := asset.NewContext(asset.WithResolver(dir))
//	defer ctx.Close()
//
//	tex := texture.New(ctx, "tex/wall.png", uploader)
//	defer tex.Close()
//
//	task := tex.Acquire() // never blocks
//	if err := task.Wait(); err != nil {
//	    // handle load failure; the resource is retryable
//	}
//
// # Architecture
//
// The module is organized into:
//   - Public API: Context, Resource, DeviceResource, LoadState
//   - sched: two-lane worker pool and Task futures
//   - handle: never-reused integer handles for device-side objects
//   - vfs: path resolution, compression, change invalidation
//   - device + backend/wgpu: upload backends behind a priority registry
//   - texture, shader, locale: concrete asset kinds
package asset
