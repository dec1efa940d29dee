// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "sync"

// MetaEntry maps one coarse-index position to its on-disk location:
// the metadata block containing the block-list cursor at this point
// (relative to inode_table_start), the byte offset within that block,
// and the absolute on-disk byte offset of the corresponding datablock.
type MetaEntry struct {
	IndexBlock    int64
	OffsetInBlock int
	DataBlock     int64
}

// MetaSlot caches a strictly increasing, contiguous run of mapping
// entries for exactly one file. Entry k refers to coarse-index
// Offset+k.
type MetaSlot struct {
	InodeNumber uint64
	Offset      int64
	Skip        int64
	Entries     int
	Locked      bool
	Entry       [EntriesPerSlot]MetaEntry
}

// SlotTable is the fixed-size meta-index cache: exactly SlotCount
// slots, allocated lazily as a unit on first use and never freed until
// the archive instance is closed.
//
// All three operations take the table mutex for their entire
// duration; a returned slot is left locked, and its contents may only
// be read or mutated by the caller holding that lock until Release is
// called.
type SlotTable struct {
	mu       sync.Mutex
	slots    []MetaSlot // nil until first allocation
	nextSlot int
}

// NewSlotTable returns an empty, unallocated slot table. The backing
// array is created on the first call to Empty.
func NewSlotTable() *SlotTable {
	return &SlotTable{}
}

// Locate scans all slots for one belonging to inode with
// low <= offset <= high that is not currently locked. If more than
// one matches, the slot with the largest offset (closest to, but not
// past, high) is returned, a locality optimization that starts the
// walk as close to the target as possible. The returned slot is
// locked before the table mutex is released. Returns nil if the table
// is unallocated or no candidate exists.
func (t *SlotTable) Locate(inode uint64, low, high int64) *MetaSlot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slots == nil {
		return nil
	}

	var found *MetaSlot
	lowerBound := low

	for i := range t.slots {
		slot := &t.slots[i]
		if slot.InodeNumber == inode && slot.Offset >= lowerBound && slot.Offset <= high && !slot.Locked {
			found = slot
			lowerBound = slot.Offset
		}
	}

	if found != nil {
		found.Locked = true
	}
	return found
}

// Empty allocates the slot table on first use, then finds and
// initializes an empty cache slot for the given file and coarse
// offset.
//
// The probe loop below is a direct translation of the kernel source's
// empty_meta_index: it advances the rotating cursor past every locked
// slot it examines, including while the probe is failing. A probe
// that finds a free slot partway through leaves the cursor there, so
// later calls don't re-examine the same locked prefix first every
// time; a probe that exhausts the whole table advances the cursor a
// full cycle and leaves it exactly where it started. Both behaviors
// are contractual, matched for observational parity with the kernel
// source this is grounded on, not merely an implementation accident.
func (t *SlotTable) Empty(inode uint64, coarseOffset, skip int64) *MetaSlot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slots == nil {
		t.slots = make([]MetaSlot, SlotCount)
		t.nextSlot = 0
	}

	remaining := SlotCount
	for remaining > 0 && t.slots[t.nextSlot].Locked {
		t.nextSlot = (t.nextSlot + 1) % SlotCount
		remaining--
	}
	if remaining == 0 {
		return nil
	}

	slot := &t.slots[t.nextSlot]
	t.nextSlot = (t.nextSlot + 1) % SlotCount

	slot.InodeNumber = inode
	slot.Offset = coarseOffset
	slot.Skip = skip
	slot.Entries = 0
	slot.Locked = true
	return slot
}

// Release clears a slot's locked flag. A full memory barrier follows
// (via the mutex acquisition it is always paired with in this
// package's callers, and explicitly here too) so that other goroutines
// observe the released state and the entries written under the lock.
func (t *SlotTable) Release(slot *MetaSlot) {
	t.mu.Lock()
	slot.Locked = false
	t.mu.Unlock()
}
