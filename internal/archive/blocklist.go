// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"fmt"
)

// ScratchWords is the number of 32-bit block-list words that fit in a
// page-sized scratch buffer: the caller's scratch buffer caps each
// call at ScratchWords = scratch_size / 4 words.
const ScratchWords = PageSize / 4

// Cursor is a position in the metadata stream: an absolute device
// offset to a metadata block, and a byte offset within that block's
// decompressed payload.
type Cursor struct {
	Block  int64
	Offset int
}

// metadataReader is the subset of *MetadataReader that BlockListReader
// needs. Declaring it lets a test wrap a real *MetadataReader in a
// counting shim without BlockListReader knowing the difference.
type metadataReader interface {
	ReadAt(dest []byte, startBlock int64, offsetInBlock int, length int) (nextStart int64, nextOffset int, err error)
}

// BlockListReader pulls compressed-size words from a file's block list
// in the metadata stream.
type BlockListReader struct {
	metadata metadataReader
}

// NewBlockListReader returns a reader over the given metadata stream.
func NewBlockListReader(metadata metadataReader) *BlockListReader {
	return &BlockListReader{metadata: metadata}
}

// ReadWords reads n little-endian 32-bit block-list words starting at
// cursor, advancing it past the consumed 4*n bytes. scratch must have
// capacity for at least 4*n bytes; the caller owns it.
func (r *BlockListReader) ReadWords(n int, cursor *Cursor, scratch []byte) ([]uint32, error) {
	need := 4 * n
	if len(scratch) < need {
		return nil, fmt.Errorf("archive: block-list scratch buffer has %d bytes, need %d", len(scratch), need)
	}

	nextBlock, nextOffset, err := r.metadata.ReadAt(scratch[:need], cursor.Block, cursor.Offset, need)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %d block-list words: %v", ErrCorruption, n, err)
	}
	cursor.Block, cursor.Offset = nextBlock, nextOffset

	words := make([]uint32, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(scratch[i*4 : i*4+4])
	}
	return words, nil
}

// Span sums CompressedSize over a set of block-list words: the
// physical on-disk span the datablocks they describe occupy.
func Span(words []uint32) int64 {
	var total int64
	for _, word := range words {
		total += int64(CompressedSize(word))
	}
	return total
}

// ReadIndexes reads the next n block-list words starting at cursor,
// advancing it, and returns the sum of their CompressedSize: the
// physical on-disk span covered by these n datablocks.
func (r *BlockListReader) ReadIndexes(n int, cursor *Cursor, scratch []byte) (int64, error) {
	words, err := r.ReadWords(n, cursor, scratch)
	if err != nil {
		return 0, err
	}
	return Span(words), nil
}
