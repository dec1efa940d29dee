// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "sync"

// PageCache stands in for the host page cache this filesystem would
// otherwise rely on (acquire, lock, mark-uptodate, mark-error, unlock,
// release, dcache-flush). latticefs is a user-space FUSE filesystem:
// the kernel's real page cache is on the far side of the FUSE channel
// and opaque to this process, so PageFiller needs its own
// page-indexed buffer to fill ahead across a whole datablock and for
// the FUSE read handler to serve out of.
//
// The table has the same fixed-size, round-robin-eviction shape as
// SlotTable: a bounded set of page slots, each either
// free, locked (exclusively owned by whoever is filling or reading
// it), or unlocked-and-resident (serving cached content). Unlike
// SlotTable, PageCache's blocking Acquire uses a condition variable
// rather than degrading to "proceed uncached" — the FUSE read handler
// needs its target page, it cannot skip it.
type PageCache struct {
	mu       sync.Mutex
	cond     *sync.Cond
	slots    []Page
	nextSlot int
}

// Page is one page-cache slot: PageSize bytes of content plus the
// state bits a host-page-cache-style contract requires.
type Page struct {
	table *PageCache

	valid bool
	Inode uint64
	Index int64

	Data     [PageSize]byte
	Uptodate bool
	Errored  bool
	locked   bool
}

// NewPageCache returns a page cache with the given fixed slot
// capacity.
func NewPageCache(capacity int) *PageCache {
	if capacity < 1 {
		capacity = 1
	}
	pc := &PageCache{slots: make([]Page, capacity)}
	pc.cond = sync.NewCond(&pc.mu)
	for i := range pc.slots {
		pc.slots[i].table = pc
	}
	return pc
}

func (pc *PageCache) find(inode uint64, pageIndex int64) int {
	for i := range pc.slots {
		if pc.slots[i].valid && pc.slots[i].Inode == inode && pc.slots[i].Index == pageIndex {
			return i
		}
	}
	return -1
}

// evict picks the next unlocked slot via round-robin, the same probe
// shape as SlotTable.Empty, and reassigns it to (inode, pageIndex).
// Must be called with mu held. Returns nil if every slot is locked.
func (pc *PageCache) evict(inode uint64, pageIndex int64) *Page {
	remaining := len(pc.slots)
	for remaining > 0 && pc.slots[pc.nextSlot].locked {
		pc.nextSlot = (pc.nextSlot + 1) % len(pc.slots)
		remaining--
	}
	if remaining == 0 {
		return nil
	}

	slot := &pc.slots[pc.nextSlot]
	pc.nextSlot = (pc.nextSlot + 1) % len(pc.slots)

	slot.valid = true
	slot.Inode = inode
	slot.Index = pageIndex
	slot.Uptodate = false
	slot.Errored = false
	slot.locked = true
	return slot
}

// AcquireNoWait returns the page slot for (inode, pageIndex), locked,
// or nil if no slot is available without blocking: either the page is
// already locked by another filler, or every slot in the table is
// currently locked. This is the non-blocking acquire the deposit loop
// uses, simply skipping a page it cannot get.
func (pc *PageCache) AcquireNoWait(inode uint64, pageIndex int64) *Page {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if i := pc.find(inode, pageIndex); i >= 0 {
		slot := &pc.slots[i]
		if slot.locked {
			return nil
		}
		slot.locked = true
		return slot
	}

	return pc.evict(inode, pageIndex)
}

// Acquire returns the page slot for (inode, pageIndex), locked,
// blocking until one is available. Used only for the target page of a
// fill: the one page the caller cannot skip.
func (pc *PageCache) Acquire(inode uint64, pageIndex int64) *Page {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for {
		if i := pc.find(inode, pageIndex); i >= 0 {
			slot := &pc.slots[i]
			if !slot.locked {
				slot.locked = true
				return slot
			}
			pc.cond.Wait()
			continue
		}

		if slot := pc.evict(inode, pageIndex); slot != nil {
			return slot
		}
		pc.cond.Wait()
	}
}

// MarkUptodate marks the page as holding valid content.
func (p *Page) MarkUptodate() {
	p.table.mu.Lock()
	p.Uptodate = true
	p.table.mu.Unlock()
}

// MarkError marks the page as holding zeroed, errored content. A page
// that is both errored and zero-filled is the graceful fallback: the
// host never sees a perpetually locked page.
func (p *Page) MarkError() {
	p.table.mu.Lock()
	p.Errored = true
	p.table.mu.Unlock()
}

// FlushDcache is a no-op hook kept for interface parity with the host
// page cache's dcache_flush — there is no kernel dcache to flush for
// pages that never leave this process.
func (p *Page) FlushDcache() {}

// Unlock releases exclusive ownership of the page so another
// acquirer can obtain it. Always safe to call, and always eventually
// called for every acquired page — a page left locked would hang a
// concurrent reader waiting on Acquire.
func (p *Page) Unlock() {
	p.table.mu.Lock()
	p.locked = false
	p.table.cond.Broadcast()
	p.table.mu.Unlock()
}

// Release drops the caller's reference to a non-target page acquired
// during the deposit loop. This table has no per-acquirer reference
// count (residency is governed by round-robin eviction, not pinning),
// so Release has no effect of its own; it exists as a distinct call
// from Unlock so a future reference-counted PageCache could add real
// pinning without changing callers.
func (p *Page) Release() {}
