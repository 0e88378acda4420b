// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command assetdemo loads every asset under a directory through the
// asset lifecycle and prints what happened.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"github.com/gogpu/asset"
	"github.com/gogpu/asset/device"
	"github.com/gogpu/asset/locale"
	"github.com/gogpu/asset/sched"
	"github.com/gogpu/asset/shader"
	"github.com/gogpu/asset/texture"
	"github.com/gogpu/asset/vfs"

	// Enable the native GPU upload backend.
	_ "github.com/gogpu/asset/backend/wgpu"
)

func main() {
	var (
		root    = flag.String("root", "assets", "asset directory")
		budget  = flag.String("budget", "512MiB", "host memory budget")
		backend = flag.String("backend", "", "upload backend (empty = best available)")
		workers = flag.Int("workers", 0, "scheduler workers (0 = GOMAXPROCS)")
		lang    = flag.String("lang", "en", "preferred UI language")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	asset.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dir, err := vfs.NewDir(*root, vfs.WithWatcher())
	if err != nil {
		log.Fatalf("open asset root: %v", err)
	}
	defer dir.Close()

	pool := sched.New(*workers, asset.DefaultLongRatio)
	defer pool.Close()

	ctx := asset.NewContext(
		asset.WithScheduler(pool),
		asset.WithResolver(dir),
		asset.WithHostBudget(*budget),
	)
	defer ctx.Close()

	up := openUploader(*backend)
	defer up.Close()

	loadAll(ctx, up, *root, *lang)

	fmt.Printf("stats: %s\n", ctx.Stats())
}

// openUploader picks the requested backend, or the best available one.
func openUploader(name string) device.Uploader {
	opts := device.Options{Label: "assetdemo"}
	if name != "" {
		up, err := device.NewByName(name, opts)
		if err != nil {
			log.Fatalf("backend %q: %v (registered: %v)", name, err, device.List())
		}
		return up
	}
	up, err := device.New(opts)
	if err != nil {
		log.Fatalf("no upload backend: %v", err)
	}
	return up
}

// loadAll walks root and pushes every recognized file through its asset
// kind, collecting futures first so loads overlap.
func loadAll(ctx *asset.Context, up device.Uploader, root, lang string) {
	type pending struct {
		path  string
		kind  string
		task  *sched.Task
		close func() error
	}
	var loads []pending
	set := locale.NewSet()
	var tables []*locale.Table

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch strings.ToLower(filepath.Ext(rel)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".webp":
			t := texture.New(ctx, rel, up)
			loads = append(loads, pending{rel, "texture", t.Acquire(), t.Close})
		case ".wgsl":
			s := shader.New(ctx, rel, up)
			loads = append(loads, pending{rel, "shader", s.Acquire(), s.Close})
		case ".properties":
			t := locale.New(ctx, rel)
			tables = append(tables, t)
			loads = append(loads, pending{rel, "locale", t.Acquire(), t.Close})
		}
		return nil
	})
	if err != nil {
		log.Fatalf("walk %s: %v", root, err)
	}
	if len(loads) == 0 {
		log.Printf("no assets found under %s", root)
		return
	}

	failed := 0
	for _, l := range loads {
		if err := l.task.Wait(); err != nil {
			failed++
			fmt.Printf("FAIL %-8s %s: %v\n", l.kind, l.path, err)
			continue
		}
		fmt.Printf("ok   %-8s %s\n", l.kind, l.path)
	}
	fmt.Printf("loaded %d/%d assets\n", len(loads)-failed, len(loads))

	for _, t := range tables {
		set.Add(t)
	}
	if tag, err := language.Parse(lang); err == nil && len(tables) > 0 {
		if title, ok := set.Lookup("title", tag); ok {
			fmt.Printf("title[%s]: %s\n", tag, title)
		}
	}

	for _, l := range loads {
		if err := l.close(); err != nil {
			log.Printf("close %s: %v", l.path, err)
		}
	}
}
