// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package locale provides localized string-table assets.
//
// A table is a host-only asset parsed from a key=value file whose name
// carries a BCP 47 language tag ("strings/de-DE.properties"). A Set
// groups tables and answers lookups through x/text language matching,
// so "de-AT" finds the "de-DE" table when no better one exists.
package locale

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/gogpu/asset"
)

// TagFromPath derives the language tag from a table file name, using
// the base name without extension ("strings/de-DE.properties" -> de-DE).
func TagFromPath(p string) (language.Tag, error) {
	base := path.Base(p)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	tag, err := language.Parse(base)
	if err != nil {
		return language.Und, fmt.Errorf("locale: %q: %w", p, err)
	}
	return tag, nil
}

// Table is a string-table asset for one language. It only has a host
// tier; the usual Acquire/Release lifecycle applies.
type Table struct {
	*asset.Resource
	tag  language.Tag
	strs *stringTable
}

// stringTable holds the parsed entries and implements the host loader.
type stringTable struct {
	mu      sync.RWMutex
	entries map[string]string
}

// New creates a string-table asset backed by the file at p. The
// language tag comes from the file name; files with unparseable names
// get language.Und.
func New(ctx *asset.Context, p string, opts ...asset.ResourceOption) *Table {
	tag, err := TagFromPath(p)
	if err != nil {
		tag = language.Und
	}
	st := &stringTable{}
	return &Table{
		Resource: asset.NewResource(ctx, p, st, opts...),
		tag:      tag,
		strs:     st,
	}
}

// Tag returns the table's language tag.
func (t *Table) Tag() language.Tag { return t.tag }

// Get returns the string for key, or false when the key is missing or
// the table is not resident.
func (t *Table) Get(key string) (string, bool) {
	t.strs.mu.RLock()
	defer t.strs.mu.RUnlock()
	v, ok := t.strs.entries[key]
	return v, ok
}

// Len returns the number of resident entries.
func (t *Table) Len() int {
	t.strs.mu.RLock()
	defer t.strs.mu.RUnlock()
	return len(t.strs.entries)
}

// LoadHost parses key=value lines. Blank lines and lines starting with
// '#' are skipped; whitespace around keys and values is trimmed.
func (s *stringTable) LoadHost(src io.Reader) error {
	entries := make(map[string]string)

	sc := bufio.NewScanner(src)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("locale: line %d: missing '='", line)
		}
		entries[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("locale: read: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// UnloadHost drops the entries.
func (s *stringTable) UnloadHost() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Set groups tables for several languages and matches lookups against
// them. The first table added is the fallback.
//
// Thread safety: Set is safe for concurrent use once populated;
// Add must not race with lookups.
type Set struct {
	mu      sync.RWMutex
	tables  []*Table
	tags    []language.Tag
	matcher language.Matcher
}

// NewSet creates an empty set.
func NewSet() *Set { return &Set{} }

// Add registers a table with the set.
func (s *Set) Add(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = append(s.tables, t)
	s.tags = append(s.tags, t.tag)
	s.matcher = language.NewMatcher(s.tags)
}

// Match returns the best table for the preferred languages, or nil for
// an empty set.
func (s *Set) Match(preferred ...language.Tag) *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.tables) == 0 {
		return nil
	}
	_, idx, _ := s.matcher.Match(preferred...)
	return s.tables[idx]
}

// Lookup returns the string for key in the best-matching table.
func (s *Set) Lookup(key string, preferred ...language.Tag) (string, bool) {
	t := s.Match(preferred...)
	if t == nil {
		return "", false
	}
	return t.Get(key)
}
