// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package asset

import (
	"log/slog"

	"github.com/gogpu/asset/sched"
	"github.com/gogpu/asset/vfs"
)

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx := asset.NewContext(
//	    asset.WithResolver(dir),
//	    asset.WithHostBudget("512MiB"),
//	)
//	defer ctx.Close()
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	scheduler   *sched.Scheduler
	resolver    vfs.Resolver
	logger      *slog.Logger
	budgetBytes int64
	budgetSpec  string
}

// WithScheduler sets a caller-owned scheduler. The Context will not
// shut it down on Close. Use this to share one worker pool across
// several contexts, or to control lane sizing.
func WithScheduler(s *sched.Scheduler) ContextOption {
	return func(o *contextOptions) {
		o.scheduler = s
	}
}

// WithResolver sets the resolver used by file-backed resources.
// Resolvers that also implement vfs.Watchable feed cache invalidation
// to resources.
func WithResolver(r vfs.Resolver) ContextOption {
	return func(o *contextOptions) {
		o.resolver = r
	}
}

// WithLogger sets a context-scoped logger, overriding the package
// logger configured via SetLogger.
func WithLogger(l *slog.Logger) ContextOption {
	return func(o *contextOptions) {
		o.logger = l
	}
}

// WithHostBudget sets a warn-only ceiling for resident host memory,
// given as a human-readable size ("512MiB", "2GB"). Exceeding the
// budget logs a warning; it never blocks or evicts. Unload policy
// stays with the owner.
func WithHostBudget(size string) ContextOption {
	return func(o *contextOptions) {
		o.budgetSpec = size
	}
}

// WithHostBudgetBytes is WithHostBudget with an exact byte count.
func WithHostBudgetBytes(n int64) ContextOption {
	return func(o *contextOptions) {
		o.budgetBytes = n
	}
}
