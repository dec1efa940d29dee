// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

// BlockLocator is the public operation that resolves a logical
// datablock index to its on-disk location and compressed size,
// growing the meta-index cache via IndexFiller as needed.
type BlockLocator struct {
	filler    *IndexFiller
	blockList *BlockListReader
	blockLog  uint32
}

// NewBlockLocator returns a locator over the given filler and
// block-list reader, for an archive with the given block_log.
func NewBlockLocator(filler *IndexFiller, blockList *BlockListReader, blockLog uint32) *BlockLocator {
	return &BlockLocator{filler: filler, blockList: blockList, blockLog: blockLog}
}

// ReadBlockList returns the absolute on-disk offset and the raw
// block-list word (compressed size plus the uncompressed flag bit) of
// the datablock at logicalIndex within inode. scratch is the
// caller-owned block-list scratch buffer, at least 4*ScratchWords
// bytes.
func (l *BlockLocator) ReadBlockList(inode *Inode, logicalIndex int64, scratch []byte) (dataBlockOffset int64, word uint32, err error) {
	skip := Skip(inode.Size >> l.blockLog)
	granularity := IndexesPerEntry * skip
	targetCoarse := logicalIndex / granularity

	reachedCoarse, cur, err := l.filler.Fill(inode, skip, targetCoarse, scratch)
	if err != nil {
		return 0, 0, err
	}

	remaining := logicalIndex - reachedCoarse*granularity
	cursor := Cursor{Block: cur.IndexBlock, Offset: cur.Offset}
	dataBlock := cur.DataBlock

	for remaining > 0 {
		n := ScratchWords
		if int64(n) > remaining {
			n = int(remaining)
		}
		span, err := l.blockList.ReadIndexes(n, &cursor, scratch)
		if err != nil {
			return 0, 0, err
		}
		dataBlock += span
		remaining -= int64(n)
	}

	// Read one more block-list word: its size is the target block's
	// own compressed size. dataBlock is unchanged — the caller wants
	// the start of this block, not the position after it.
	words, err := l.blockList.ReadWords(1, &cursor, scratch)
	if err != nil {
		return 0, 0, err
	}

	return dataBlock, words[0], nil
}
