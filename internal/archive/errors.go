// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "errors"

// Sentinel errors for the error kinds this package distinguishes.
// Callers that need to distinguish kinds use errors.Is; everything
// else just propagates the wrapped error.
var (
	// ErrCorruption is returned when a located meta-index slot claims
	// a coverage range but has zero entries, or when a metadata read
	// fails in a way that cannot be attributed to cache exhaustion.
	ErrCorruption = errors.New("archive: meta-index corruption")

	// ErrExhaustedCache is returned by FragmentCache.Get when every
	// entry is pinned. The meta-index does not use it: SlotTable.Empty
	// returns nil when every slot is locked, and IndexFiller degrades to
	// an uncached walk without an error.
	ErrExhaustedCache = errors.New("archive: cache exhausted")

	// ErrReadFailure is returned when the data-block reader fails to
	// decompress a block.
	ErrReadFailure = errors.New("archive: data block read failure")

	// ErrFragmentError is returned when a fragment cache entry's
	// error flag is set.
	ErrFragmentError = errors.New("archive: fragment block read failure")
)
