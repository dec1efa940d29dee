// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"log/slog"
	"sync"
)

// PageFiller is the top-level read-path operation: given a file and a
// target page index, it produces a fully populated, unlocked page in
// the PageCache, filling in as many of the surrounding pages within
// the same datablock as it can reach along the way without blocking
// on them.
//
// A PageFiller is not safe for concurrent use by itself beyond what
// its component parts already serialize: BlockLocator/IndexFiller
// serialize on the shared SlotTable, FragmentCache serializes
// internally, and the decompression scratch buffer is guarded by
// scratchLock. Multiple goroutines may call FillPages concurrently.
type PageFiller struct {
	locator    *BlockLocator
	dataReader *DataBlockReader
	fragments  *FragmentCache
	pages      *PageCache

	blockSize uint32
	blockLog  uint32

	scratchLock *sync.Mutex
	scratchPage []byte

	readaheadBlocks int

	logger *slog.Logger
}

// NewPageFiller wires together the components a fill needs. scratch
// is a decompression output buffer shared with the rest of the
// archive (at least blockSize bytes), guarded by scratchLock: the same
// single-buffer-under-one-lock shape used for the rest of the
// datablock read path. readaheadBlocks caps how many pages beyond the
// target page a single FillPages call will proactively fill; zero or
// negative leaves the deposit loop unbounded within the current
// datablock.
func NewPageFiller(locator *BlockLocator, dataReader *DataBlockReader, fragments *FragmentCache, pages *PageCache, blockSize, blockLog uint32, scratchLock *sync.Mutex, scratch []byte, readaheadBlocks int, logger *slog.Logger) *PageFiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageFiller{
		locator:         locator,
		dataReader:      dataReader,
		fragments:       fragments,
		pages:           pages,
		blockSize:       blockSize,
		blockLog:        blockLog,
		scratchLock:     scratchLock,
		scratchPage:     scratch,
		readaheadBlocks: readaheadBlocks,
		logger:          logger,
	}
}

// FillPages fills the page at targetPage for inode, plus as many
// neighboring pages of the same datablock (or fragment) as can be
// locked without blocking. It never returns an error to the caller:
// every failure along the way is turned into a zero-filled, errored
// target page, so no outcome is left unhandled. The caller
// re-acquires the target page afterward and inspects its Errored bit
// to decide whether to surface EIO.
func (f *PageFiller) FillPages(inode *Inode, targetPage int64) {
	f.logger.Debug("squashfs_readpage", "inode", inode.InodeNumber, "page", targetPage, "size", inode.Size)

	lastPage := (inode.Size + PageSize - 1) >> PageShift
	if targetPage >= lastPage {
		f.finishPage(inode, targetPage, false)
		return
	}

	shift := f.blockLog - PageShift
	datablockIndex := targetPage >> shift
	pageMask := int64(1)<<shift - 1
	startPage := targetPage &^ pageMask
	endPage := startPage | pageMask
	if f.readaheadBlocks > 0 {
		if ceiling := targetPage + int64(f.readaheadBlocks); ceiling < endPage {
			endPage = ceiling
		}
	}
	fileLastDatablock := inode.Size >> f.blockLog

	useFragment := datablockIndex >= fileLastDatablock && inode.HasFragment()

	var (
		source    []byte
		available int64
		sparse    bool
		heldLock  bool
	)

	switch {
	case useFragment:
		entry, err := f.fragments.Get(inode.FragmentBlock, inode.FragmentSize)
		if err != nil {
			f.logger.Warn("fragment read failed", "inode", inode.InodeNumber, "fragment_block", inode.FragmentBlock, "error", err)
			if entry != nil {
				f.fragments.Release(entry)
			}
			f.finishPage(inode, targetPage, true)
			return
		}
		defer f.fragments.Release(entry)

		available = inode.Size & (int64(f.blockSize) - 1)
		if int64(inode.FragmentOffset)+available > int64(len(entry.Data)) {
			f.logger.Warn("fragment offset out of range", "inode", inode.InodeNumber, "fragment_block", inode.FragmentBlock)
			f.finishPage(inode, targetPage, true)
			return
		}
		source = entry.Data[inode.FragmentOffset:]

	default:
		scratch := make([]byte, 4*ScratchWords)
		dataBlock, word, err := f.locator.ReadBlockList(inode, datablockIndex, scratch)
		if err != nil {
			f.logger.Warn("block list read failed", "inode", inode.InodeNumber, "datablock", datablockIndex, "error", err)
			f.finishPage(inode, targetPage, true)
			return
		}

		if CompressedSize(word) == 0 {
			// Hole: no I/O at all, not even the scratch buffer lock.
			sparse = true
			if datablockIndex == fileLastDatablock {
				available = inode.Size & (int64(f.blockSize) - 1)
			} else {
				available = int64(f.blockSize)
			}
		} else {
			f.scratchLock.Lock()
			heldLock = true
			n, err := f.dataReader.Read(f.scratchPage, dataBlock, word, int(f.blockSize))
			if err != nil {
				f.scratchLock.Unlock()
				f.logger.Warn("data block read failed", "inode", inode.InodeNumber, "datablock", datablockIndex, "error", err)
				f.finishPage(inode, targetPage, true)
				return
			}
			available = int64(n)
			source = f.scratchPage
		}
	}

	if heldLock {
		defer f.scratchLock.Unlock()
	}

	f.depositPages(inode, targetPage, startPage, endPage, source, available, sparse)
}

// depositPages walks every page of the current datablock (or
// fragment tail), copying out of source in PageSize strides and
// marking each page it manages to lock as uptodate. Pages other than
// the target that cannot be locked without blocking are simply
// skipped; a future read will fill them itself.
func (f *PageFiller) depositPages(inode *Inode, targetPage, startPage, endPage int64, source []byte, available int64, sparse bool) {
	offset := int64(0)

	for i := startPage; i <= endPage; i++ {
		remaining := available - offset
		if remaining < 0 {
			remaining = 0
		}
		f.logger.Debug("page_deposit", "inode", inode.InodeNumber, "page", i, "target", i == targetPage, "bytes", remaining, "avail", available)

		var page *Page
		if i == targetPage {
			page = f.pages.Acquire(inode.InodeNumber, i)
		} else {
			page = f.pages.AcquireNoWait(inode.InodeNumber, i)
			if page == nil {
				offset += PageSize
				continue
			}
		}

		if page.Uptodate {
			page.Unlock()
			if i != targetPage {
				page.Release()
			}
			offset += PageSize
			continue
		}

		n := remaining
		if n > PageSize {
			n = PageSize
		}
		if !sparse && n > 0 {
			copy(page.Data[:n], source[offset:offset+n])
		}
		for j := n; j < PageSize; j++ {
			page.Data[j] = 0
		}

		page.FlushDcache()
		page.MarkUptodate()
		page.Unlock()
		if i != targetPage {
			page.Release()
		}

		offset += PageSize
	}
}

// finishPage acquires the target page directly, zero-fills it, and
// marks it either uptodate (read past EOF — a legitimate zero-length
// read, not an error) or errored (every other failure path), then
// unlocks it. This is the single exit point used whenever the normal
// multi-page deposit loop cannot run at all.
func (f *PageFiller) finishPage(inode *Inode, targetPage int64, isError bool) {
	page := f.pages.Acquire(inode.InodeNumber, targetPage)
	for i := range page.Data {
		page.Data[i] = 0
	}
	page.FlushDcache()
	if isError {
		page.MarkError()
	} else {
		page.MarkUptodate()
	}
	page.Unlock()
}
