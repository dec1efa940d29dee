// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"sync"
)

// FragEntry is one decompressed fragment block resident in the
// fragment cache: the tail bytes of every file short enough (or with
// a tail short enough) to be packed rather than given its own
// datablock.
type FragEntry struct {
	Block int64 // absolute on-disk offset identifying this fragment block
	Data  []byte
	Error bool

	valid    bool
	refCount int
}

// FragmentCache is a small reference-counted cache of decompressed
// fragment blocks, grounded on the ring-plus-pin cache shape of
// lib/artifactstore/cache.go: entries are looked up by block offset,
// held alive for as long as any caller is using them, and evicted by
// round robin among entries with a zero reference count.
//
// Unlike the meta-index's MetaSlot table, fragment entries are
// genuinely shared read-only data — many concurrent readers of
// different pages within the same fragment block hold the same entry
// at once — so this cache uses reference counting rather than an
// exclusive lock bit.
type FragmentCache struct {
	mu        sync.Mutex
	reader    *DataBlockReader
	blockSize uint32
	entries   []FragEntry
	next      int
}

// NewFragmentCache returns a fragment cache of the given fixed
// capacity, reading fragment blocks through reader. blockSize bounds
// the decompressed size of a fragment block.
func NewFragmentCache(reader *DataBlockReader, blockSize uint32, capacity int) *FragmentCache {
	if capacity < 1 {
		capacity = 1
	}
	return &FragmentCache{
		reader:    reader,
		blockSize: blockSize,
		entries:   make([]FragEntry, capacity),
	}
}

// Get returns the decompressed fragment block at the given absolute
// offset and compressed-size word, reading and decompressing it on a
// cache miss. The returned entry must be released with Release once
// the caller is done reading from it. A failed read is cached too
// (Error set, Data nil) so repeated lookups of a known-bad fragment
// block don't retry the I/O; the caller still gets a non-nil error
// back from Get on that path.
func (c *FragmentCache) Get(block int64, word uint32) (*FragEntry, error) {
	c.mu.Lock()

	for i := range c.entries {
		if c.entries[i].valid && c.entries[i].Block == block {
			c.entries[i].refCount++
			entry := &c.entries[i]
			c.mu.Unlock()
			if entry.Error {
				return entry, fmt.Errorf("%w: fragment block %d previously failed", ErrFragmentError, block)
			}
			return entry, nil
		}
	}

	remaining := len(c.entries)
	for remaining > 0 && c.entries[c.next].valid && c.entries[c.next].refCount > 0 {
		c.next = (c.next + 1) % len(c.entries)
		remaining--
	}
	if remaining == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: fragment cache exhausted", ErrExhaustedCache)
	}

	entry := &c.entries[c.next]
	c.next = (c.next + 1) % len(c.entries)
	entry.Block = block
	entry.valid = true
	entry.refCount = 1
	c.mu.Unlock()

	data := make([]byte, c.blockSize)
	n, err := c.reader.Read(data, block, word, int(c.blockSize))
	if err != nil {
		c.mu.Lock()
		entry.Data = nil
		entry.Error = true
		c.mu.Unlock()
		return entry, fmt.Errorf("%w: %w", ErrFragmentError, err)
	}

	c.mu.Lock()
	entry.Data = data[:n]
	entry.Error = false
	c.mu.Unlock()
	return entry, nil
}

// Release drops the caller's reference to a fragment entry. Once the
// reference count reaches zero the entry becomes eligible for
// round-robin eviction, but its content is left in place until then —
// a second Get for the same block before eviction is a cache hit.
func (c *FragmentCache) Release(entry *FragEntry) {
	c.mu.Lock()
	entry.refCount--
	c.mu.Unlock()
}
