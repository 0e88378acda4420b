// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package handle provides stable integer handles for device-side and
// other process-lifetime resources.
//
// A Handle decouples a resource's identity from its memory address or
// backend object. Handles are assigned from a monotonically increasing
// counter starting at 1 and are never reused within a process, so a
// stale handle can be detected (lookup misses) instead of silently
// aliasing a newer resource.
package handle

import (
	"sync"
	"sync/atomic"
)

// Handle identifies an entry in a Table. The zero Handle is never
// assigned and can be used as a "no resource" sentinel.
type Handle uint64

// None is the zero handle.
const None Handle = 0

// IsValid reports whether h could have been assigned by a Table.
func (h Handle) IsValid() bool { return h != None }

// shardCount is the number of shards for reduced lock contention.
// Must be a power of 2 for fast modulo via bitwise AND.
const shardCount = 16

const shardMask = shardCount - 1

// Table is a thread-safe map from never-reused integer handles to
// values of type V.
//
// Concurrent Insert calls from different threads never receive the
// same handle; Get and Remove are safe to call concurrently with
// Insert and with each other. Handles are sharded across independent
// locks so unrelated lookups do not contend.
//
// The zero Table is ready to use.
type Table[V any] struct {
	// next is the last assigned handle; the first Insert returns 1.
	next atomic.Uint64

	// count tracks live entries across all shards.
	count atomic.Int64

	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[Handle]V
}

// NewTable creates an empty table. Equivalent to new(Table[V]).
func NewTable[V any]() *Table[V] {
	return &Table[V]{}
}

// Insert stores v and returns its newly assigned handle.
// O(1) amortized.
func (t *Table[V]) Insert(v V) Handle {
	h := Handle(t.next.Add(1))

	s := &t.shards[uint64(h)&shardMask]
	s.mu.Lock()
	if s.entries == nil {
		s.entries = make(map[Handle]V)
	}
	s.entries[h] = v
	s.mu.Unlock()

	t.count.Add(1)
	return h
}

// Get returns the value for h. The second result is false if h was
// never assigned or has been removed.
func (t *Table[V]) Get(h Handle) (V, bool) {
	s := &t.shards[uint64(h)&shardMask]
	s.mu.RLock()
	v, ok := s.entries[h]
	s.mu.RUnlock()
	return v, ok
}

// Remove deletes h and returns the prior value, or (zero, false) if
// the handle is stale. Handles are not reused after removal.
func (t *Table[V]) Remove(h Handle) (V, bool) {
	s := &t.shards[uint64(h)&shardMask]
	s.mu.Lock()
	v, ok := s.entries[h]
	if ok {
		delete(s.entries, h)
	}
	s.mu.Unlock()

	if ok {
		t.count.Add(-1)
	}
	return v, ok
}

// Len returns the number of live entries.
func (t *Table[V]) Len() int {
	return int(t.count.Load())
}

// Range calls fn for each live entry until fn returns false.
//
// Range holds one shard lock at a time; it is not a consistent snapshot
// with respect to concurrent inserts and removes.
func (t *Table[V]) Range(fn func(Handle, V) bool) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for h, v := range s.entries {
			if !fn(h, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
