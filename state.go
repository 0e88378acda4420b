// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package asset

import "fmt"

// LoadState is the lifecycle state of one tier (host or device) of a
// resource. Exactly one state holds at any instant per tier.
type LoadState int32

const (
	// Unloaded: no memory is resident for this tier.
	Unloaded LoadState = iota

	// Loading: a load job is in flight (or chained behind an unload).
	Loading

	// Loaded: the tier's memory is resident and usable.
	Loaded

	// Unloading: an unload job is in flight.
	Unloading
)

// String returns a human-readable state name.
func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case Unloading:
		return "Unloading"
	default:
		return fmt.Sprintf("LoadState(%d)", int32(s))
	}
}
