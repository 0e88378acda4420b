// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device abstracts the GPU upload path used by device-backed
// assets and manages the registry of upload backends.
//
// Asset kinds (textures, buffers, shaders) talk to an Uploader; which
// backend provides it is decided at runtime through the registry.
// Backends register themselves from init, typically behind a build tag
// or an availability probe, so importing a backend package is all it
// takes to enable it:
//
//	import _ "github.com/gogpu/asset/backend/wgpu"
//
//	up, err := device.New(device.Options{})
package device

import (
	"errors"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/asset/handle"
)

// ErrNilProvider is returned when a nil DeviceProvider is passed.
var ErrNilProvider = errors.New("device: nil DeviceProvider")

// Uploader moves asset payloads into device memory and hands back
// stable handles for the resulting device objects.
//
// Handles come from a single table per uploader and are never reused,
// so a stale handle held across a Release fails lookups instead of
// aliasing a newer object.
//
// Implementations must be safe for concurrent use; uploads run on
// scheduler workers.
type Uploader interface {
	// UploadTexture creates a device texture from tightly packed RGBA
	// pixels (4 bytes per texel, width*height*4 total).
	UploadTexture(width, height int, rgba []byte) (handle.Handle, error)

	// UploadBuffer creates a device buffer with the given contents.
	UploadBuffer(data []byte) (handle.Handle, error)

	// UploadShader creates a shader module from SPIR-V words.
	UploadShader(words []uint32) (handle.Handle, error)

	// Release destroys the device object behind h. Unknown or stale
	// handles are ignored.
	Release(h handle.Handle)

	// Close releases all remaining device objects and the underlying
	// device resources. The uploader must not be used afterwards.
	Close() error
}

// FromProvider creates an uploader that shares the GPU device owned by
// a windowing or rendering stack, via its gpucontext.DeviceProvider.
// The device's lifetime stays with the provider. Selection falls
// through the registry like New.
func FromProvider(provider gpucontext.DeviceProvider, label string) (Uploader, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	return New(Options{Label: label, SharedContext: provider})
}

// Options configures uploader creation.
type Options struct {
	// Label is attached to created device objects where the backend
	// supports debug labels.
	Label string

	// SharedContext optionally supplies an existing device and queue
	// instead of letting the backend create its own. Backends probe it
	// for the accessors they understand (see backend/wgpu).
	SharedContext any
}
