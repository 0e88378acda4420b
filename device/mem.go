// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/asset/handle"
)

// memObject is a device object held in host memory.
type memObject struct {
	kind  string
	bytes int
}

// MemUploader is the built-in fallback backend: it keeps "device"
// objects in host memory. It makes headless environments and tests work
// without a GPU, with the same handle semantics as a real backend.
type MemUploader struct {
	objects *handle.Table[*memObject]
	bytes   atomic.Int64
	closed  atomic.Bool
}

// NewMemUploader creates an in-memory uploader.
func NewMemUploader() *MemUploader {
	return &MemUploader{objects: handle.NewTable[*memObject]()}
}

// UploadTexture stores the pixel data and returns a handle for it.
func (u *MemUploader) UploadTexture(width, height int, rgba []byte) (handle.Handle, error) {
	if u.closed.Load() {
		return handle.None, fmt.Errorf("device: uploader closed")
	}
	if want := width * height * 4; len(rgba) != want {
		return handle.None, fmt.Errorf("device: texture data is %d bytes, want %d for %dx%d RGBA",
			len(rgba), want, width, height)
	}
	u.bytes.Add(int64(len(rgba)))
	return u.objects.Insert(&memObject{kind: "texture", bytes: len(rgba)}), nil
}

// UploadBuffer stores the buffer data and returns a handle for it.
func (u *MemUploader) UploadBuffer(data []byte) (handle.Handle, error) {
	if u.closed.Load() {
		return handle.None, fmt.Errorf("device: uploader closed")
	}
	u.bytes.Add(int64(len(data)))
	return u.objects.Insert(&memObject{kind: "buffer", bytes: len(data)}), nil
}

// UploadShader stores the SPIR-V words and returns a handle for them.
func (u *MemUploader) UploadShader(words []uint32) (handle.Handle, error) {
	if u.closed.Load() {
		return handle.None, fmt.Errorf("device: uploader closed")
	}
	n := len(words) * 4
	u.bytes.Add(int64(n))
	return u.objects.Insert(&memObject{kind: "shader", bytes: n}), nil
}

// Release drops the object behind h. Stale handles are ignored.
func (u *MemUploader) Release(h handle.Handle) {
	if obj, ok := u.objects.Remove(h); ok {
		u.bytes.Add(-int64(obj.bytes))
	}
}

// Bytes returns the total size of live objects. Test hook.
func (u *MemUploader) Bytes() int64 { return u.bytes.Load() }

// Live returns the number of live objects. Test hook.
func (u *MemUploader) Live() int { return u.objects.Len() }

// Close drops all objects.
func (u *MemUploader) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	// Collect first: Remove inside Range would deadlock on the shard lock.
	var live []handle.Handle
	u.objects.Range(func(h handle.Handle, _ *memObject) bool {
		live = append(live, h)
		return true
	})
	for _, h := range live {
		u.objects.Remove(h)
	}
	u.bytes.Store(0)
	return nil
}
