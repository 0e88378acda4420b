// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader provides WGSL shader assets. The host tier reads the
// source and compiles it to SPIR-V with naga; the device tier creates
// the shader module through a device.Uploader.
package shader

import (
	"fmt"
	"io"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/asset"
	"github.com/gogpu/asset/device"
	"github.com/gogpu/asset/handle"
)

// CompileToSPIRV compiles WGSL source to SPIR-V uint32 words.
func CompileToSPIRV(wgslSource string) ([]uint32, error) {
	// Compile WGSL to SPIR-V bytes
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	return words, nil
}

// Shader is a GPU-backed shader asset.
//
// The expensive step is host-side compilation, which runs on the
// scheduler's long-running lane like every host load. The device load
// only creates the module from the compiled words.
type Shader struct {
	*asset.DeviceResource
	prog *program
}

// program carries the compiled SPIR-V and the device handle, and
// implements both tier loaders.
type program struct {
	up device.Uploader

	mu     sync.Mutex
	source string
	words  []uint32
	h      handle.Handle
}

// New creates a shader asset backed by the WGSL file at path.
func New(ctx *asset.Context, path string, up device.Uploader, opts ...asset.ResourceOption) *Shader {
	p := &program{up: up}
	return &Shader{
		DeviceResource: asset.NewDeviceResource(ctx, path, p, p, opts...),
		prog:           p,
	}
}

// Source returns the WGSL source, or "" when the host tier is not
// resident.
func (s *Shader) Source() string {
	s.prog.mu.Lock()
	defer s.prog.mu.Unlock()
	return s.prog.source
}

// Words returns the compiled SPIR-V words, or nil when the host tier is
// not resident. The caller must not retain them past a Release.
func (s *Shader) Words() []uint32 {
	s.prog.mu.Lock()
	defer s.prog.mu.Unlock()
	return s.prog.words
}

// DeviceHandle returns the handle of the device shader module, or
// handle.None when the device tier is not resident.
func (s *Shader) DeviceHandle() handle.Handle {
	s.prog.mu.Lock()
	defer s.prog.mu.Unlock()
	return s.prog.h
}

// LoadHost reads the WGSL source and compiles it.
func (p *program) LoadHost(src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("shader: read source: %w", err)
	}
	words, err := CompileToSPIRV(string(data))
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.source = string(data)
	p.words = words
	p.mu.Unlock()
	return nil
}

// UnloadHost drops the source and compiled words.
func (p *program) UnloadHost() {
	p.mu.Lock()
	p.source = ""
	p.words = nil
	p.mu.Unlock()
}

// LoadDevice creates the device shader module. Runs while the host tier
// is pinned, so words is non-nil.
func (p *program) LoadDevice() error {
	if p.up == nil {
		return fmt.Errorf("shader: no uploader configured")
	}
	p.mu.Lock()
	words := p.words
	p.mu.Unlock()
	if len(words) == 0 {
		return fmt.Errorf("shader: compiled words not resident")
	}

	h, err := p.up.UploadShader(words)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.h = h
	p.mu.Unlock()
	return nil
}

// UnloadDevice releases the device shader module.
func (p *program) UnloadDevice() {
	p.mu.Lock()
	h := p.h
	p.h = handle.None
	p.mu.Unlock()
	if h.IsValid() {
		p.up.Release(h)
	}
}
