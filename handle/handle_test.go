// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package handle

import (
	"sync"
	"testing"
)

func TestTable_InsertGetRemove(t *testing.T) {
	var tab Table[string]

	h := tab.Insert("mesh")
	if h != 1 {
		t.Errorf("first handle = %d, want 1", h)
	}
	if !h.IsValid() {
		t.Error("assigned handle should be valid")
	}

	v, ok := tab.Get(h)
	if !ok || v != "mesh" {
		t.Errorf("Get(%d) = (%q, %v), want (\"mesh\", true)", h, v, ok)
	}

	v, ok = tab.Remove(h)
	if !ok || v != "mesh" {
		t.Errorf("Remove(%d) = (%q, %v), want (\"mesh\", true)", h, v, ok)
	}

	if _, ok := tab.Get(h); ok {
		t.Error("Get after Remove should miss")
	}
	if _, ok := tab.Remove(h); ok {
		t.Error("second Remove should miss")
	}
}

func TestTable_StaleHandle(t *testing.T) {
	var tab Table[int]
	if _, ok := tab.Get(42); ok {
		t.Error("Get of never-assigned handle should miss")
	}
	if _, ok := tab.Get(None); ok {
		t.Error("Get of None should miss")
	}
}

func TestTable_HandlesNeverReused(t *testing.T) {
	var tab Table[int]

	h1 := tab.Insert(1)
	tab.Remove(h1)
	h2 := tab.Insert(2)

	if h2 == h1 {
		t.Errorf("handle %d was reused after removal", h1)
	}
	if h2 <= h1 {
		t.Errorf("handles must be monotonically increasing: %d then %d", h1, h2)
	}
}

func TestTable_Len(t *testing.T) {
	var tab Table[int]

	for i := range 10 {
		tab.Insert(i)
	}
	if tab.Len() != 10 {
		t.Errorf("Len() = %d, want 10", tab.Len())
	}

	tab.Remove(1)
	tab.Remove(2)
	if tab.Len() != 8 {
		t.Errorf("Len() = %d, want 8", tab.Len())
	}
}

func TestTable_Range(t *testing.T) {
	var tab Table[int]
	want := map[Handle]int{}
	for i := range 20 {
		want[tab.Insert(i)] = i
	}

	got := map[Handle]int{}
	tab.Range(func(h Handle, v int) bool {
		got[h] = v
		return true
	})

	if len(got) != len(want) {
		t.Fatalf("Range visited %d entries, want %d", len(got), len(want))
	}
	for h, v := range want {
		if got[h] != v {
			t.Errorf("Range saw %d = %d, want %d", h, got[h], v)
		}
	}
}

// 8 goroutines, 1000 inserts each: exactly 8000 unique handles, and
// every handle resolves to the value that was inserted under it.
func TestTable_ConcurrentInsert(t *testing.T) {
	var tab Table[int]

	const (
		goroutines = 8
		perG       = 1000
	)

	results := make([][]Handle, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := range goroutines {
		go func() {
			defer wg.Done()
			handles := make([]Handle, 0, perG)
			for i := range perG {
				handles = append(handles, tab.Insert(g*perG+i))
			}
			results[g] = handles
		}()
	}
	wg.Wait()

	seen := make(map[Handle]bool, goroutines*perG)
	for g, handles := range results {
		for i, h := range handles {
			if seen[h] {
				t.Fatalf("duplicate handle %d", h)
			}
			seen[h] = true

			v, ok := tab.Get(h)
			if !ok {
				t.Fatalf("Get(%d) missed after concurrent insert", h)
			}
			if v != g*perG+i {
				t.Fatalf("Get(%d) = %d, want %d", h, v, g*perG+i)
			}
		}
	}

	if len(seen) != goroutines*perG {
		t.Errorf("unique handles = %d, want %d", len(seen), goroutines*perG)
	}
	if tab.Len() != goroutines*perG {
		t.Errorf("Len() = %d, want %d", tab.Len(), goroutines*perG)
	}
}

func TestTable_ConcurrentMixed(t *testing.T) {
	var tab Table[int]

	var wg sync.WaitGroup
	wg.Add(4)

	// Two inserters, one reader, one remover running together.
	for range 2 {
		go func() {
			defer wg.Done()
			for i := range 500 {
				tab.Insert(i)
			}
		}()
	}
	go func() {
		defer wg.Done()
		for h := Handle(1); h <= 500; h++ {
			tab.Get(h)
		}
	}()
	go func() {
		defer wg.Done()
		for h := Handle(1); h <= 500; h += 2 {
			tab.Remove(h)
		}
	}()

	wg.Wait()
}
