// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"errors"
	"testing"

	"github.com/gogpu/asset/handle"
)

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_PriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("low", 10, func(Options) (Uploader, error) { return NewMemUploader(), nil }, nil)
	r.Register("high", 100, func(Options) (Uploader, error) { return NewMemUploader(), nil }, nil)

	names := r.List()
	if len(names) != 2 || names[0] != "high" || names[1] != "low" {
		t.Errorf("List() = %v, want [high low]", names)
	}
}

func TestRegistry_AvailableFilters(t *testing.T) {
	r := NewRegistry()
	r.Register("gone", 100, func(Options) (Uploader, error) { return NewMemUploader(), nil },
		func() bool { return false })
	r.Register("here", 10, func(Options) (Uploader, error) { return NewMemUploader(), nil }, nil)

	avail := r.Available()
	if len(avail) != 1 || avail[0] != "here" {
		t.Errorf("Available() = %v, want [here]", avail)
	}
}

func TestRegistry_NewPicksBestAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register("unavailable", 100, func(Options) (Uploader, error) { return NewMemUploader(), nil },
		func() bool { return false })
	mem := NewMemUploader()
	r.Register("fallback", 10, func(Options) (Uploader, error) { return mem, nil }, nil)

	u, err := r.New(Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if u != mem {
		t.Error("New() did not fall through to the available backend")
	}
}

func TestRegistry_NewByNameErrors(t *testing.T) {
	r := NewRegistry()
	r.Register("off", 10, func(Options) (Uploader, error) { return NewMemUploader(), nil },
		func() bool { return false })

	var notFound *BackendNotFoundError
	if _, err := r.NewByName("nope", Options{}); !errors.As(err, &notFound) {
		t.Errorf("NewByName(nope) = %v, want BackendNotFoundError", err)
	}

	var unavailable *BackendUnavailableError
	if _, err := r.NewByName("off", Options{}); !errors.As(err, &unavailable) {
		t.Errorf("NewByName(off) = %v, want BackendUnavailableError", err)
	}
}

func TestRegistry_EmptyRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New(Options{}); !errors.Is(err, ErrNoBackendAvailable) {
		t.Errorf("New() on empty registry = %v, want ErrNoBackendAvailable", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register("x", 10, func(Options) (Uploader, error) { return NewMemUploader(), nil }, nil)
	r.Unregister("x")
	if names := r.List(); len(names) != 0 {
		t.Errorf("List() after Unregister = %v, want empty", names)
	}
}

func TestGlobalRegistry_MemoryFallback(t *testing.T) {
	// The built-in backend keeps New working without a GPU.
	u, err := New(Options{})
	if err != nil {
		t.Fatalf("New() = %v, want the memory fallback", err)
	}
	defer u.Close()
}

// =============================================================================
// MemUploader
// =============================================================================

func TestMemUploader_HandleLifecycle(t *testing.T) {
	u := NewMemUploader()
	defer u.Close()

	tex, err := u.UploadTexture(2, 2, make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	buf, err := u.UploadBuffer([]byte("abcd"))
	if err != nil {
		t.Fatal(err)
	}
	if tex == buf {
		t.Error("distinct uploads share a handle")
	}
	if u.Live() != 2 {
		t.Errorf("Live() = %d, want 2", u.Live())
	}
	if u.Bytes() != 20 {
		t.Errorf("Bytes() = %d, want 20", u.Bytes())
	}

	u.Release(tex)
	u.Release(tex) // stale release is a no-op
	if u.Live() != 1 {
		t.Errorf("Live() = %d, want 1", u.Live())
	}
	if u.Bytes() != 4 {
		t.Errorf("Bytes() = %d, want 4", u.Bytes())
	}
}

func TestMemUploader_RejectsBadTextureSize(t *testing.T) {
	u := NewMemUploader()
	defer u.Close()

	if h, err := u.UploadTexture(4, 4, make([]byte, 10)); err == nil || h != handle.None {
		t.Errorf("UploadTexture with short data = (%v, %v), want error", h, err)
	}
}

func TestMemUploader_Close(t *testing.T) {
	u := NewMemUploader()
	u.UploadBuffer([]byte("x"))
	u.Close()
	u.Close()

	if u.Live() != 0 || u.Bytes() != 0 {
		t.Errorf("Close left %d objects / %d bytes", u.Live(), u.Bytes())
	}
	if _, err := u.UploadBuffer([]byte("y")); err == nil {
		t.Error("upload after Close should fail")
	}
}
