// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"log/slog"
)

// triple is the filler's running state while walking the block list:
// the block-list cursor (as an absolute device offset and in-block
// byte offset) and the datablock offset reached so far.
type triple struct {
	IndexBlock int64
	Offset     int
	DataBlock  int64
}

// IndexFiller grows a meta-index slot's mapping incrementally up to a
// target coarse-index, invoking BlockListReader as needed. This is the
// component that makes random access to large files cheap: once a
// slot covers a range, reaching any coarse-index within it costs zero
// metadata reads.
type IndexFiller struct {
	slots           *SlotTable
	blockList       *BlockListReader
	inodeTableStart int64
	logger          *slog.Logger
}

// NewIndexFiller returns a filler over the given slot table and
// block-list reader. inodeTableStart is the archive offset where the
// inode/metadata region begins, used to translate between the
// absolute device offsets the filler works with and the
// inode-table-relative offsets stored in slot entries. A nil logger
// defaults to slog.Default().
func NewIndexFiller(slots *SlotTable, blockList *BlockListReader, inodeTableStart int64, logger *slog.Logger) *IndexFiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexFiller{slots: slots, blockList: blockList, inodeTableStart: inodeTableStart, logger: logger}
}

// Fill walks coarse-index positions toward targetCoarse for the given
// inode at the given skip factor, growing meta-index slots as needed.
// scratch is the caller's block-list scratch buffer (at least
// 4*ScratchWords bytes).
//
// On success it returns the coarse-index actually reached, which may
// be less than targetCoarse if the slot cache was exhausted. That is
// not an error; the caller proceeds from whatever position was
// reached. It also returns the triple describing that position. A
// located slot with zero entries, or a metadata read failure, returns
// an error wrapping ErrCorruption.
func (f *IndexFiller) Fill(inode *Inode, skip, targetCoarse int64, scratch []byte) (int64, triple, error) {
	f.logger.Debug("get_meta_index", "inode", inode.InodeNumber, "skip", skip, "target_coarse", targetCoarse)

	cur := triple{
		IndexBlock: inode.BlockListStart,
		Offset:     int(inode.Offset),
		DataBlock:  inode.StartBlock,
	}
	var pos int64

	for pos < targetCoarse {
		slot := f.slots.Locate(inode.InodeNumber, pos+1, targetCoarse)
		f.logger.Debug("locate_meta_index", "inode", inode.InodeNumber, "low", pos+1, "high", targetCoarse, "found", slot != nil)

		if slot != nil {
			if slot.Entries == 0 {
				f.slots.Release(slot)
				return 0, triple{}, fmt.Errorf("%w: located slot for inode %d has zero entries", ErrCorruption, inode.InodeNumber)
			}

			j := targetCoarse
			if last := slot.Offset + int64(slot.Entries) - 1; last < j {
				j = last
			}
			entry := slot.Entry[j-slot.Offset]
			cur = triple{
				IndexBlock: entry.IndexBlock + f.inodeTableStart,
				Offset:     entry.OffsetInBlock,
				DataBlock:  entry.DataBlock,
			}
			pos = j
		} else {
			slot = f.slots.Empty(inode.InodeNumber, pos+1, skip)
			f.logger.Debug("empty_meta_index", "inode", inode.InodeNumber, "coarse_offset", pos+1, "skip", skip, "exhausted", slot == nil)
			if slot == nil {
				// Cache exhausted: the caller proceeds from the
				// current running triple, degraded but correct.
				return pos, cur, nil
			}
		}

		limit := slot.Offset + EntriesPerSlot - 1
		for i := slot.Offset + int64(slot.Entries); i <= targetCoarse && i <= limit; i++ {
			cursor := Cursor{Block: cur.IndexBlock, Offset: cur.Offset}

			blocksRemaining := skip * IndexesPerEntry
			for blocksRemaining > 0 {
				n := ScratchWords
				if int64(n) > blocksRemaining {
					n = int(blocksRemaining)
				}
				f.logger.Debug("read_blocklist", "inode", inode.InodeNumber, "words", n, "block", cursor.Block, "offset", cursor.Offset)
				span, err := f.blockList.ReadIndexes(n, &cursor, scratch)
				if err != nil {
					f.slots.Release(slot)
					return 0, triple{}, err
				}
				cur.DataBlock += span
				blocksRemaining -= int64(n)
			}
			cur.IndexBlock, cur.Offset = cursor.Block, cursor.Offset

			slot.Entry[i-slot.Offset] = MetaEntry{
				IndexBlock:    cur.IndexBlock - f.inodeTableStart,
				OffsetInBlock: cur.Offset,
				DataBlock:     cur.DataBlock,
			}
			slot.Entries++
			pos = i
		}

		f.slots.Release(slot)
	}

	return pos, cur, nil
}
