// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultPageCacheSlots and DefaultFragmentCacheSlots size the two
// fixed-capacity caches an Archive owns when Options leaves them
// unset.
const (
	DefaultPageCacheSlots     = 64
	DefaultFragmentCacheSlots = 4
)

// Options configures an Archive at open time.
type Options struct {
	// PageCacheSlots is the fixed capacity of the page-cache stand-in.
	// Zero uses DefaultPageCacheSlots.
	PageCacheSlots int

	// FragmentCacheSlots is the fixed capacity of the fragment cache.
	// Zero uses DefaultFragmentCacheSlots.
	FragmentCacheSlots int

	// ReadaheadBlocks bounds how many pages beyond the target page
	// PageFiller's deposit loop will proactively fill within a single
	// FillPages call. Zero or negative disables the cap, so the loop
	// fills every page of the current datablock (or fragment tail) as
	// before. It is naturally bounded by the datablock's own remaining
	// page count, so values larger than that have no further effect.
	ReadaheadBlocks int

	// Logger receives structured Debug records at the meta-index and
	// page-fill decision points, plus Warn/Error records for degraded
	// and failed reads. Nil defaults to a quiet logger that discards
	// every record.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PageCacheSlots <= 0 {
		o.PageCacheSlots = DefaultPageCacheSlots
	}
	if o.FragmentCacheSlots <= 0 {
		o.FragmentCacheSlots = DefaultFragmentCacheSlots
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return o
}

// noopWriter discards log output for the default, quiet logger.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Archive is a single opened archive image: the memory-mapped device,
// the parsed superblock, and every component of the read path wired
// together into a single per-archive-instance context passed
// explicitly between them, with locks as fields of that context rather
// than package-level state. There is no process-wide singleton.
type Archive struct {
	device     *ArchiveDevice
	superblock *Superblock

	metadata   *MetadataReader
	dataBlocks *DataBlockReader
	blockList  *BlockListReader

	slots  *SlotTable
	filler *IndexFiller
	locator *BlockLocator

	fragments *FragmentCache
	pages     *PageCache

	scratchLock sync.Mutex
	scratchPage []byte

	pageFiller *PageFiller
	directory  *DirectoryTree

	logger *slog.Logger
}

// Open memory-maps the archive image at path, parses its superblock,
// and wires up every read-path component. The returned Archive owns
// the mapping until Close is called.
func Open(path string, opts Options) (*Archive, error) {
	opts = opts.withDefaults()

	device, err := OpenArchiveDevice(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, superblockSize)
	if _, err := device.ReadAt(header, 0); err != nil {
		device.Close()
		return nil, fmt.Errorf("archive: reading superblock: %w", err)
	}
	sb, err := DecodeSuperblock(header)
	if err != nil {
		device.Close()
		return nil, err
	}
	if err := sb.Validate(); err != nil {
		device.Close()
		return nil, err
	}

	metadata := NewMetadataReader(device, sb.Compression)
	dataBlocks := NewDataBlockReader(device, sb.Compression)
	blockList := NewBlockListReader(metadata)

	slots := NewSlotTable()
	filler := NewIndexFiller(slots, blockList, sb.InodeTableStart, opts.Logger)
	locator := NewBlockLocator(filler, blockList, sb.BlockLog)

	fragments := NewFragmentCache(dataBlocks, sb.BlockSize, opts.FragmentCacheSlots)
	pages := NewPageCache(opts.PageCacheSlots)

	a := &Archive{
		device:     device,
		superblock: sb,
		metadata:   metadata,
		dataBlocks: dataBlocks,
		blockList:  blockList,
		slots:      slots,
		filler:     filler,
		locator:    locator,
		fragments:  fragments,
		pages:      pages,
		scratchPage: make([]byte, sb.BlockSize),
		logger:     opts.Logger,
	}
	a.pageFiller = NewPageFiller(locator, dataBlocks, fragments, pages, sb.BlockSize, sb.BlockLog, &a.scratchLock, a.scratchPage, opts.ReadaheadBlocks, a.logger)
	a.directory = NewDirectoryTree(metadata, sb.DirTableStart, sb.RootInode)

	return a, nil
}

// Close unmaps the archive image. It does not wait for in-flight
// reads; callers are expected to have quiesced FUSE traffic first,
// since there is no concurrent-close protocol beyond what the mount
// layer already serializes.
func (a *Archive) Close() error {
	return a.device.Close()
}

// Superblock returns the archive's parsed superblock.
func (a *Archive) Superblock() *Superblock { return a.superblock }

// Directory returns the archive's directory-table walker.
func (a *Archive) Directory() *DirectoryTree { return a.directory }

// Inode decodes the regular-file inode at ref.
func (a *Archive) Inode(ref InodeRef) (*Inode, error) {
	return ReadInode(a.metadata, a.superblock.InodeTableStart, ref)
}

// ReadFile reads up to len(dest) bytes of inode's content starting at
// offset, filling pages through PageFiller as needed and copying
// their bytes out. It is the single entry point internal/fuse's Read
// handler calls — the page-index and copy-out arithmetic is written
// once here instead of being duplicated in the FUSE binding, the same
// shape as a single shared readAt helper used by a FUSE Read method.
func (a *Archive) ReadFile(inode *Inode, offset int64, dest []byte) (int, error) {
	if offset < 0 || offset >= inode.Size || len(dest) == 0 {
		return 0, nil
	}
	if offset+int64(len(dest)) > inode.Size {
		dest = dest[:inode.Size-offset]
	}

	total := 0
	for total < len(dest) {
		pos := offset + int64(total)
		pageIndex := pos >> PageShift
		pageOffset := pos & (PageSize - 1)

		a.pageFiller.FillPages(inode, pageIndex)

		page := a.pages.Acquire(inode.InodeNumber, pageIndex)
		n := copy(dest[total:], page.Data[pageOffset:])
		errored := page.Errored
		page.Unlock()

		if errored {
			return total, fmt.Errorf("%w: page %d of inode %d", ErrReadFailure, pageIndex, inode.InodeNumber)
		}
		total += n
	}
	return total, nil
}
