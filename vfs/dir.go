// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vfs

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/gogpu/asset/handle"
)

// Compressed backing-file extensions, tried in order when the plain
// file is absent.
const (
	extLZ4 = ".lz4"
	extXZ  = ".xz"
)

// DirOption configures a Dir during creation.
type DirOption func(*Dir)

// WithWatcher enables filesystem watching on the root directory.
// Registered invalidation callbacks fire when a file under the root is
// written, removed or renamed.
func WithWatcher() DirOption {
	return func(d *Dir) { d.watch = true }
}

// WithLogger sets the logger for watch events and errors.
func WithLogger(l *slog.Logger) DirOption {
	return func(d *Dir) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dir resolves logical paths against a root directory on the local
// filesystem.
//
// A path "mesh/a.bin" resolves to <root>/mesh/a.bin. When the plain
// file does not exist, "mesh/a.bin.lz4" and "mesh/a.bin.xz" are tried
// in turn and Open transparently decompresses.
//
// Thread safety: Dir is safe for concurrent use.
type Dir struct {
	root   string
	logger *slog.Logger

	watch   bool
	watcher *fsnotify.Watcher

	// subs holds invalidation callbacks; the handle doubles as the
	// subscription token.
	subs handle.Table[InvalidateFunc]
}

// NewDir creates a resolver rooted at the given directory.
func NewDir(root string, opts ...DirOption) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("vfs: root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vfs: root %q is not a directory", root)
	}

	d := &Dir{
		root:   root,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.watch {
		if err := d.startWatcher(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Root returns the root directory.
func (d *Dir) Root() string { return d.root }

// Resolve maps a logical path to a backing file.
// Returns ErrNotFound (wrapped with the path) when neither the plain
// nor a compressed variant exists.
func (d *Dir) Resolve(p string) (RawFile, error) {
	rel, err := d.sanitize(p)
	if err != nil {
		return nil, err
	}
	abs := filepath.Join(d.root, filepath.FromSlash(rel))

	if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
		return &dirFile{logical: rel, abs: abs, size: info.Size()}, nil
	}

	for _, ext := range []string{extLZ4, extXZ} {
		cabs := abs + ext
		if info, err := os.Stat(cabs); err == nil && info.Mode().IsRegular() {
			// Decoded size is unknown without reading the stream.
			return &dirFile{logical: rel, abs: cabs, size: -1, compression: ext}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
}

// sanitize normalizes a logical path and rejects escapes above the root.
func (d *Dir) sanitize(p string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))[1:]
	if clean == "" || clean == "." {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	return clean, nil
}

// OnInvalidate registers fn to run when a resolved path changes on
// disk. Requires WithWatcher; without it the callback never fires.
func (d *Dir) OnInvalidate(fn InvalidateFunc) uint64 {
	return uint64(d.subs.Insert(fn))
}

// RemoveInvalidate drops a subscription registered with OnInvalidate.
func (d *Dir) RemoveInvalidate(token uint64) {
	d.subs.Remove(handle.Handle(token))
}

// Close stops the watcher, if any.
func (d *Dir) Close() error {
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}

func (d *Dir) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("vfs: watcher: %w", err)
	}
	d.watcher = w

	// fsnotify watches are not recursive; add every subdirectory.
	err = filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return w.Add(p)
		}
		return nil
	})
	if err != nil {
		w.Close()
		d.watcher = nil
		return fmt.Errorf("vfs: watcher: %w", err)
	}

	go d.watchLoop()
	return nil
}

func (d *Dir) watchLoop() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) == 0 {
				continue
			}
			// New directories need their own watch.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := d.watcher.Add(ev.Name); err != nil {
						d.logger.Warn("failed to watch new directory", "dir", ev.Name, "err", err)
					}
					continue
				}
			}
			d.invalidate(ev.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("watcher error", "err", err)
		}
	}
}

// invalidate fires callbacks with the logical path of a changed file.
func (d *Dir) invalidate(abs string) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return
	}
	logical := filepath.ToSlash(rel)
	logical = strings.TrimSuffix(strings.TrimSuffix(logical, extLZ4), extXZ)

	d.logger.Debug("backing file changed", "path", logical)
	d.subs.Range(func(_ handle.Handle, fn InvalidateFunc) bool {
		fn(logical)
		return true
	})
}

// dirFile is a RawFile backed by a file under a Dir root.
type dirFile struct {
	logical     string
	abs         string
	size        int64
	compression string // "", extLZ4 or extXZ
}

func (f *dirFile) Path() string { return f.logical }
func (f *dirFile) Size() int64  { return f.size }

func (f *dirFile) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, f.logical)
		}
		return nil, err
	}

	switch f.compression {
	case extLZ4:
		return &decompressedStream{r: lz4.NewReader(file), closer: file}, nil
	case extXZ:
		xr, err := xz.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("vfs: open %s: %w", f.logical, err)
		}
		return &decompressedStream{r: xr, closer: file}, nil
	default:
		return file, nil
	}
}

// decompressedStream pairs a decompressing reader with the underlying
// file's closer.
type decompressedStream struct {
	r      io.Reader
	closer io.Closer
}

func (s *decompressedStream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *decompressedStream) Close() error               { return s.closer.Close() }
