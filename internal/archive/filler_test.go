// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"testing"
)

// buildBlockListFixture writes n block-list words (sizes 100, 101, ...)
// as a single uncompressed metadata block and returns the words plus a
// device built from that block.
func buildBlockListFixture(t *testing.T, n int) (*ArchiveDevice, []uint32) {
	t.Helper()

	words := make([]uint32, n)
	for i := range words {
		words[i] = EncodeBlockListWord(uint32(100+i), i%3 == 0)
	}

	builder := newMetadataBlockBuilder(0)
	builder.writeUncompressedBlock(encodeWords(words...))
	return newTestDevice(t, builder.bytes()), words
}

func sumSizes(words []uint32, n int) int64 {
	var total int64
	for i := 0; i < n; i++ {
		total += int64(CompressedSize(words[i]))
	}
	return total
}

func TestIndexFillerFillWithinOneEntry(t *testing.T) {
	device, words := buildBlockListFixture(t, 20)
	metadata := NewMetadataReader(device, CompressionLZ4)
	blockList := NewBlockListReader(metadata)
	slots := NewSlotTable()
	filler := NewIndexFiller(slots, blockList, 0, nil)

	inode := &Inode{InodeNumber: 1, BlockListStart: 0, Offset: 0, StartBlock: 1000}
	scratch := make([]byte, ScratchWords*4)

	pos, cur, err := filler.Fill(inode, 1, 1, scratch)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if pos != 1 {
		t.Fatalf("pos = %d, want 1", pos)
	}
	want := inode.StartBlock + sumSizes(words, IndexesPerEntry)
	if cur.DataBlock != want {
		t.Fatalf("DataBlock = %d, want %d", cur.DataBlock, want)
	}
}

// countingMetadataReader wraps a real *MetadataReader and counts calls
// to ReadAt, so a test can assert that a cache-hit path never reaches
// the underlying metadata stream at all.
type countingMetadataReader struct {
	inner *MetadataReader
	reads int
}

func (c *countingMetadataReader) ReadAt(dest []byte, startBlock int64, offsetInBlock int, length int) (int64, int, error) {
	c.reads++
	return c.inner.ReadAt(dest, startBlock, offsetInBlock, length)
}

func TestIndexFillerFillReusesCachedSlot(t *testing.T) {
	device, _ := buildBlockListFixture(t, 40)
	metadata := &countingMetadataReader{inner: NewMetadataReader(device, CompressionLZ4)}
	blockList := NewBlockListReader(metadata)
	slots := NewSlotTable()
	filler := NewIndexFiller(slots, blockList, 0, nil)

	inode := &Inode{InodeNumber: 5, BlockListStart: 0, Offset: 0, StartBlock: 0}
	scratch := make([]byte, ScratchWords*4)

	if _, _, err := filler.Fill(inode, 1, 2, scratch); err != nil {
		t.Fatalf("first Fill: %v", err)
	}
	readsAfterFirst := metadata.reads

	// A second Fill for a coarse-index already covered by the slot
	// built above is served from the cached entries without walking
	// the block list again: the underlying metadata reader sees no
	// additional ReadAt calls.
	pos, cur, err := filler.Fill(inode, 1, 1, scratch)
	if err != nil {
		t.Fatalf("second Fill: %v", err)
	}
	if pos != 1 {
		t.Fatalf("pos = %d, want 1 (served from cache)", pos)
	}
	_ = cur
	if metadata.reads != readsAfterFirst {
		t.Fatalf("second Fill issued %d metadata reads, want 0 (readsAfterFirst=%d, total=%d)", metadata.reads-readsAfterFirst, readsAfterFirst, metadata.reads)
	}
}

func TestIndexFillerFillDegradesOnCacheExhaustion(t *testing.T) {
	device, _ := buildBlockListFixture(t, (SlotCount+2)*EntriesPerSlot*IndexesPerEntry)
	metadata := NewMetadataReader(device, CompressionLZ4)
	blockList := NewBlockListReader(metadata)
	slots := NewSlotTable()
	filler := NewIndexFiller(slots, blockList, 0, nil)

	// Lock every slot so none are available for allocation, then
	// request a file's index far beyond any lockable progress.
	held := make([]*MetaSlot, 0, SlotCount)
	for i := 0; i < SlotCount; i++ {
		held = append(held, slots.Empty(uint64(1000+i), 0, 1))
	}

	inode := &Inode{InodeNumber: 999, BlockListStart: 0, Offset: 0, StartBlock: 0}
	scratch := make([]byte, ScratchWords*4)

	pos, _, err := filler.Fill(inode, 1, 5, scratch)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if pos != 0 {
		t.Fatalf("pos = %d, want 0 (no slot could be allocated)", pos)
	}

	for _, slot := range held {
		slots.Release(slot)
	}
}

func TestIndexFillerFillCorruptSlotZeroEntries(t *testing.T) {
	device, _ := buildBlockListFixture(t, 20)
	metadata := NewMetadataReader(device, CompressionLZ4)
	blockList := NewBlockListReader(metadata)
	slots := NewSlotTable()
	filler := NewIndexFiller(slots, blockList, 0, nil)

	inode := &Inode{InodeNumber: 7, BlockListStart: 0, Offset: 0, StartBlock: 0}
	scratch := make([]byte, ScratchWords*4)

	// Forge a slot that claims coverage of coarse-index 1 but was
	// never actually filled with any entries, then release it so
	// Locate can find it. A real meta-index never produces this: it
	// models a corrupted or torn slot.
	slot := slots.Empty(inode.InodeNumber, 1, 1)
	slots.Release(slot)

	_, _, err := filler.Fill(inode, 1, 1, scratch)
	if !errors.Is(err, ErrCorruption) {
		t.Fatalf("Fill with a zero-entry slot: got %v, want ErrCorruption", err)
	}
}
