// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package texture provides image assets with a host-tier decoded pixel
// buffer and a device-tier GPU texture.
//
// The host tier decodes PNG, JPEG, GIF, BMP, TIFF and WebP into RGBA.
// The device tier uploads the pixels through a device.Uploader.
package texture

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"sync"

	// Registered decoders. The x/image formats extend the stdlib set.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/asset"
	"github.com/gogpu/asset/device"
	"github.com/gogpu/asset/handle"
)

// Texture is a GPU-backed image asset.
//
// Acquire loads and decodes the image on the host tier and uploads it
// to the device tier; the lifecycle semantics are those of
// asset.DeviceResource.
type Texture struct {
	*asset.DeviceResource
	pix *pixels
}

// pixels carries the decoded image and the device handle. It is the
// loader for both tiers, kept separate from Texture so the callback
// methods stay off the public API.
type pixels struct {
	up device.Uploader

	mu  sync.Mutex
	img *image.RGBA
	h   handle.Handle
}

// New creates a texture asset backed by the image file at path.
// Uploads go through up; nil is allowed if the device tier is never
// acquired.
func New(ctx *asset.Context, path string, up device.Uploader, opts ...asset.ResourceOption) *Texture {
	p := &pixels{up: up}
	return &Texture{
		DeviceResource: asset.NewDeviceResource(ctx, path, p, p, opts...),
		pix:            p,
	}
}

// Image returns the decoded host-tier pixels, or nil when the host tier
// is not resident. The caller must not retain it past a Release.
func (t *Texture) Image() *image.RGBA {
	t.pix.mu.Lock()
	defer t.pix.mu.Unlock()
	return t.pix.img
}

// Bounds returns the image bounds, or the zero rectangle when the host
// tier is not resident.
func (t *Texture) Bounds() image.Rectangle {
	t.pix.mu.Lock()
	defer t.pix.mu.Unlock()
	if t.pix.img == nil {
		return image.Rectangle{}
	}
	return t.pix.img.Bounds()
}

// DeviceHandle returns the handle of the uploaded GPU texture, or
// handle.None when the device tier is not resident.
func (t *Texture) DeviceHandle() handle.Handle {
	t.pix.mu.Lock()
	defer t.pix.mu.Unlock()
	return t.pix.h
}

// LoadHost decodes the image and converts it to RGBA.
func (p *pixels) LoadHost(src io.Reader) error {
	img, _, err := image.Decode(src)
	if err != nil {
		return fmt.Errorf("texture: decode: %w", err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}

	p.mu.Lock()
	p.img = rgba
	p.mu.Unlock()
	return nil
}

// UnloadHost drops the decoded pixels.
func (p *pixels) UnloadHost() {
	p.mu.Lock()
	p.img = nil
	p.mu.Unlock()
}

// LoadDevice uploads the decoded pixels. Runs while the host tier is
// pinned, so img is non-nil.
func (p *pixels) LoadDevice() error {
	if p.up == nil {
		return fmt.Errorf("texture: no uploader configured")
	}
	p.mu.Lock()
	img := p.img
	p.mu.Unlock()
	if img == nil {
		return fmt.Errorf("texture: host pixels not resident")
	}

	b := img.Bounds()
	h, err := p.up.UploadTexture(b.Dx(), b.Dy(), img.Pix)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.h = h
	p.mu.Unlock()
	return nil
}

// UnloadDevice releases the GPU texture.
func (p *pixels) UnloadDevice() {
	p.mu.Lock()
	h := p.h
	p.h = handle.None
	p.mu.Unlock()
	if h.IsValid() {
		p.up.Release(h)
	}
}
