// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package wgpu provides the native GPU upload backend using gogpu/wgpu.
//
// Importing this package registers the "wgpu" backend with the device
// registry at priority 100. The backend opens a Vulkan device through
// the HAL, or attaches to a shared device when one is supplied via
// device.Options.SharedContext.
package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/asset/device"
	"github.com/gogpu/asset/handle"
)

func init() {
	device.Register("wgpu", 100, func(opts device.Options) (device.Uploader, error) {
		return New(opts)
	}, available)
}

// available reports whether the Vulkan HAL backend is compiled in.
// Opening a device can still fail at creation time on GPU-less hosts.
func available() bool {
	_, ok := hal.GetBackend(gputypes.BackendVulkan)
	return ok
}

type objectKind uint8

const (
	kindBuffer objectKind = iota
	kindTexture
	kindShader
)

// object tracks one device resource behind a handle.
type object struct {
	kind    objectKind
	buffer  hal.Buffer
	texture hal.Texture
	shader  hal.ShaderModule
}

// Uploader implements device.Uploader on a HAL device.
//
// Thread safety: Uploader is safe for concurrent use. Device calls are
// serialized by a mutex; the HAL queue is not assumed reentrant.
type Uploader struct {
	mu       sync.Mutex
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool

	label   string
	objects *handle.Table[*object]
	closed  bool
}

// New creates an uploader. With SharedContext set, the provider's device
// and queue are used and their lifetime stays with the provider;
// otherwise a standalone Vulkan device is opened and owned by the
// uploader.
func New(opts device.Options) (*Uploader, error) {
	u := &Uploader{
		label:   opts.Label,
		objects: handle.NewTable[*object](),
	}
	if u.label == "" {
		u.label = "asset"
	}

	if opts.SharedContext != nil {
		if err := u.attachShared(opts.SharedContext); err != nil {
			return nil, err
		}
		return u, nil
	}
	if err := u.initGPU(); err != nil {
		return nil, err
	}
	return u, nil
}

// attachShared adopts a device and queue from an external provider.
// The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func (u *Uploader) attachShared(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	u.device = dev
	u.queue = queue
	u.external = true
	return nil
}

// initGPU opens a standalone Vulkan device for upload use.
func (u *Uploader) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	u.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		u.instance = nil
		return fmt.Errorf("wgpu: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		u.instance = nil
		return fmt.Errorf("wgpu: open device: %w", err)
	}
	u.device = openDev.Device
	u.queue = openDev.Queue
	return nil
}

// UploadTexture creates an RGBA8 sampled texture and writes the pixels.
func (u *Uploader) UploadTexture(width, height int, rgba []byte) (handle.Handle, error) {
	if want := width * height * 4; len(rgba) != want {
		return handle.None, fmt.Errorf("wgpu: texture data is %d bytes, want %d for %dx%d RGBA",
			len(rgba), want, width, height)
	}
	w, h := uint32(width), uint32(height)

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return handle.None, fmt.Errorf("wgpu: uploader closed")
	}

	tex, err := u.device.CreateTexture(&hal.TextureDescriptor{
		Label:         u.label + "_texture",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return handle.None, fmt.Errorf("wgpu: create texture: %w", err)
	}

	u.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
		},
		rgba,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)

	return u.objects.Insert(&object{kind: kindTexture, texture: tex}), nil
}

// UploadBuffer creates a storage buffer and writes the data.
func (u *Uploader) UploadBuffer(data []byte) (handle.Handle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return handle.None, fmt.Errorf("wgpu: uploader closed")
	}

	buf, err := u.device.CreateBuffer(&hal.BufferDescriptor{
		Label: u.label + "_buffer", Size: uint64(len(data)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return handle.None, fmt.Errorf("wgpu: create buffer: %w", err)
	}
	u.queue.WriteBuffer(buf, 0, data)

	return u.objects.Insert(&object{kind: kindBuffer, buffer: buf}), nil
}

// UploadShader creates a shader module from SPIR-V words.
func (u *Uploader) UploadShader(words []uint32) (handle.Handle, error) {
	if len(words) == 0 {
		return handle.None, fmt.Errorf("wgpu: empty SPIR-V bytecode")
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return handle.None, fmt.Errorf("wgpu: uploader closed")
	}

	module, err := u.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: u.label + "_shader",
		Source: hal.ShaderSource{
			SPIRV: words,
		},
	})
	if err != nil {
		return handle.None, fmt.Errorf("wgpu: create shader module: %w", err)
	}

	return u.objects.Insert(&object{kind: kindShader, shader: module}), nil
}

// Release destroys the device object behind h. Stale handles are a
// no-op, so a release racing a Close stays safe.
func (u *Uploader) Release(h handle.Handle) {
	obj, ok := u.objects.Remove(h)
	if !ok {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.destroy(obj)
}

// destroy releases one device object. Called with u.mu held.
func (u *Uploader) destroy(obj *object) {
	switch obj.kind {
	case kindBuffer:
		u.device.DestroyBuffer(obj.buffer)
	case kindTexture:
		u.device.DestroyTexture(obj.texture)
	case kindShader:
		u.device.DestroyShaderModule(obj.shader)
	}
}

// Live returns the number of live device objects. Test hook.
func (u *Uploader) Live() int { return u.objects.Len() }

// Close destroys all remaining objects and, for standalone uploaders,
// the device and instance. Shared devices stay with their provider.
func (u *Uploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true

	// Collect first: Remove inside Range would deadlock on the shard lock.
	var live []handle.Handle
	u.objects.Range(func(h handle.Handle, _ *object) bool {
		live = append(live, h)
		return true
	})
	for _, h := range live {
		if obj, ok := u.objects.Remove(h); ok {
			u.destroy(obj)
		}
	}

	if !u.external && u.device != nil {
		u.device.Destroy()
	}
	if u.instance != nil {
		u.instance.Destroy()
		u.instance = nil
	}
	return nil
}
