// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package wgpu

import (
	"testing"

	"github.com/gogpu/asset/device"
)

// newGPUUploader opens a standalone uploader or skips when no usable
// GPU is present on the host.
func newGPUUploader(t *testing.T) *Uploader {
	t.Helper()
	if !available() {
		t.Skip("vulkan backend not available")
	}
	u, err := New(device.Options{Label: "test"})
	if err != nil {
		t.Skipf("no usable GPU: %v", err)
	}
	t.Cleanup(func() { u.Close() })
	return u
}

func TestRegistered(t *testing.T) {
	if _, ok := device.Get("wgpu"); !ok {
		t.Fatal("wgpu backend not registered")
	}
}

func TestUploadTexture(t *testing.T) {
	u := newGPUUploader(t)

	h, err := u.UploadTexture(4, 4, make([]byte, 4*4*4))
	if err != nil {
		t.Fatalf("UploadTexture failed: %v", err)
	}
	if !h.IsValid() {
		t.Fatal("invalid handle for successful upload")
	}
	if u.Live() != 1 {
		t.Errorf("Live() = %d, want 1", u.Live())
	}

	u.Release(h)
	u.Release(h) // stale release is a no-op
	if u.Live() != 0 {
		t.Errorf("Live() = %d, want 0", u.Live())
	}
}

func TestUploadTextureSizeMismatch(t *testing.T) {
	u := newGPUUploader(t)

	if _, err := u.UploadTexture(4, 4, make([]byte, 7)); err == nil {
		t.Error("UploadTexture with short data should fail")
	}
}

func TestUploadBuffer(t *testing.T) {
	u := newGPUUploader(t)

	h, err := u.UploadBuffer([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("UploadBuffer failed: %v", err)
	}
	if !h.IsValid() {
		t.Fatal("invalid handle for successful upload")
	}
	u.Release(h)
}

func TestCloseDropsObjects(t *testing.T) {
	u := newGPUUploader(t)

	if _, err := u.UploadBuffer([]byte{1}); err != nil {
		t.Fatal(err)
	}
	u.Close()
	if u.Live() != 0 {
		t.Errorf("Live() = %d after Close, want 0", u.Live())
	}
	if _, err := u.UploadBuffer([]byte{2}); err == nil {
		t.Error("upload after Close should fail")
	}
}
