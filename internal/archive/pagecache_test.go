// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"testing"
	"time"
)

func TestPageCacheAcquireNoWaitFindsExisting(t *testing.T) {
	pc := NewPageCache(4)

	page := pc.AcquireNoWait(1, 0)
	if page == nil {
		t.Fatal("AcquireNoWait returned nil on an empty table")
	}
	page.Data[0] = 0x42
	page.MarkUptodate()
	page.Unlock()

	again := pc.AcquireNoWait(1, 0)
	if again == nil {
		t.Fatal("AcquireNoWait failed to find the already-resident page")
	}
	if again.Data[0] != 0x42 || !again.Uptodate {
		t.Fatal("AcquireNoWait returned a different page than the one filled")
	}
	again.Unlock()
}

func TestPageCacheAcquireNoWaitSkipsLockedPage(t *testing.T) {
	pc := NewPageCache(1)

	page := pc.AcquireNoWait(1, 0)
	if page == nil {
		t.Fatal("AcquireNoWait returned nil on an empty table")
	}

	if pc.AcquireNoWait(1, 0) != nil {
		t.Fatal("AcquireNoWait returned a page still locked by another holder")
	}
	if pc.AcquireNoWait(2, 0) != nil {
		t.Fatal("AcquireNoWait evicted into a fully locked table")
	}

	page.Unlock()
}

func TestPageCacheAcquireBlocksUntilUnlocked(t *testing.T) {
	pc := NewPageCache(1)

	first := pc.AcquireNoWait(1, 0)
	if first == nil {
		t.Fatal("AcquireNoWait returned nil on an empty table")
	}

	done := make(chan *Page, 1)
	go func() {
		done <- pc.Acquire(1, 0)
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before the holder released the page")
	case <-time.After(50 * time.Millisecond):
	}

	first.Unlock()

	select {
	case second := <-done:
		if second == nil {
			t.Fatal("Acquire returned a nil page")
		}
		second.Unlock()
	case <-time.After(time.Second):
		t.Fatal("Acquire never returned after the page was unlocked")
	}
}

func TestPageCacheMarkError(t *testing.T) {
	pc := NewPageCache(2)
	page := pc.Acquire(7, 3)
	page.MarkError()
	page.Unlock()

	again := pc.AcquireNoWait(7, 3)
	if again == nil {
		t.Fatal("AcquireNoWait failed to find the errored page")
	}
	if !again.Errored {
		t.Fatal("expected the errored flag to persist across Unlock/Acquire")
	}
	again.Unlock()
}

func TestPageCacheEvictsRoundRobin(t *testing.T) {
	pc := NewPageCache(2)

	a := pc.AcquireNoWait(1, 0)
	a.Unlock()
	b := pc.AcquireNoWait(1, 1)
	b.Unlock()

	// Both slots are now free and resident. A third distinct page must
	// evict one of them rather than fail.
	c := pc.AcquireNoWait(1, 2)
	if c == nil {
		t.Fatal("AcquireNoWait failed to evict a free slot for a new page")
	}
	c.Unlock()
}
