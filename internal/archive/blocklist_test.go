// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "testing"

func TestBlockListReaderReadWords(t *testing.T) {
	builder := newMetadataBlockBuilder(0)
	words := []uint32{
		EncodeBlockListWord(1000, false),
		EncodeBlockListWord(4096, true),
		EncodeBlockListWord(0, false), // hole
		EncodeBlockListWord(512, false),
	}
	builder.writeUncompressedBlock(encodeWords(words...))

	device := newTestDevice(t, builder.bytes())
	metadata := NewMetadataReader(device, CompressionLZ4)
	reader := NewBlockListReader(metadata)

	cursor := &Cursor{Block: 0, Offset: 0}
	scratch := make([]byte, ScratchWords*4)

	got, err := reader.ReadWords(4, cursor, scratch)
	if err != nil {
		t.Fatalf("ReadWords: %v", err)
	}
	for i, w := range got {
		if w != words[i] {
			t.Fatalf("word[%d] = %#x, want %#x", i, w, words[i])
		}
	}
	// The four words fill the block's 16-byte payload exactly, so the
	// cursor moves on to the start of the next block: 2 header bytes
	// plus 16 payload bytes later.
	if cursor.Block != 18 || cursor.Offset != 0 {
		t.Fatalf("cursor = (%d, %d), want (18, 0)", cursor.Block, cursor.Offset)
	}
}

func TestBlockListReaderReadIndexesSumsSpan(t *testing.T) {
	builder := newMetadataBlockBuilder(0)
	words := []uint32{
		EncodeBlockListWord(100, false),
		EncodeBlockListWord(200, true),
		EncodeBlockListWord(0, false),
	}
	builder.writeUncompressedBlock(encodeWords(words...))

	device := newTestDevice(t, builder.bytes())
	metadata := NewMetadataReader(device, CompressionLZ4)
	reader := NewBlockListReader(metadata)

	cursor := &Cursor{Block: 0, Offset: 0}
	scratch := make([]byte, ScratchWords*4)

	span, err := reader.ReadIndexes(3, cursor, scratch)
	if err != nil {
		t.Fatalf("ReadIndexes: %v", err)
	}
	if span != 300 {
		t.Fatalf("span = %d, want 300", span)
	}
}

func TestBlockListReaderScratchTooSmall(t *testing.T) {
	builder := newMetadataBlockBuilder(0)
	builder.writeUncompressedBlock(encodeWords(EncodeBlockListWord(10, false)))

	device := newTestDevice(t, builder.bytes())
	metadata := NewMetadataReader(device, CompressionLZ4)
	reader := NewBlockListReader(metadata)

	cursor := &Cursor{Block: 0, Offset: 0}
	if _, err := reader.ReadWords(4, cursor, make([]byte, 4)); err == nil {
		t.Fatal("expected an error with an undersized scratch buffer")
	}
}
