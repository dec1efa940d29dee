// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"fmt"
)

// Fixed cache geometry. These are on-disk format constants: changing
// them changes how existing images must be interpreted, so they are
// not configurable at mount time.
const (
	// SlotCount is the number of meta-index cache slots held per
	// archive instance.
	SlotCount = 8

	// EntriesPerSlot is the number of mapping entries a single slot
	// can hold.
	EntriesPerSlot = 127

	// IndexesPerEntry is the number of raw logical block indexes one
	// slot entry advances over at skip factor 1.
	IndexesPerEntry = 16

	// CachedMetadataBlocks bounds the skip factor so that a single
	// coarse-index step never needs to traverse more metadata blocks
	// than the metadata reader can keep resident.
	CachedMetadataBlocks = 8

	// InvalidBlock is the sentinel fragment_block value meaning "this
	// file has no fragment; its final block is a full datablock".
	InvalidBlock = -1
)

// PageShift and PageSize fix the granularity of the page-cache
// stand-in. 4096 matches the common host page size.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// compressedSizeMask masks out the "uncompressed" flag bit, leaving
// the on-disk length of a data or metadata block.
const compressedSizeMask = 0x00FFFFFF

// uncompressedFlag is bit 24 of a block-list word: when set, the
// block this word describes is stored verbatim rather than compressed.
const uncompressedFlag = 0x01000000

// CompressedSize returns the on-disk length encoded in a block-list
// word, with the uncompressed flag bit masked out. A result of 0
// denotes a hole (sparse block).
func CompressedSize(word uint32) uint32 {
	return word & compressedSizeMask
}

// IsUncompressed reports whether a block-list word's flag bit marks
// the block it describes as stored verbatim.
func IsUncompressed(word uint32) bool {
	return word&uncompressedFlag != 0
}

// EncodeBlockListWord packs a compressed size and the uncompressed
// flag into a single block-list word. Used only by test fixtures that
// synthesize archive images — this module does not write images.
func EncodeBlockListWord(compressedSize uint32, uncompressed bool) uint32 {
	word := compressedSize & compressedSizeMask
	if uncompressed {
		word |= uncompressedFlag
	}
	return word
}

// superblockMagic identifies a latticefs archive image.
const superblockMagic = 0x6c617472 // "latr"

// Superblock holds the fixed-size header at the start of an archive
// image.
type Superblock struct {
	Magic           uint32
	BlockSize       uint32
	BlockLog        uint32
	InodeTableStart int64
	DirTableStart   int64
	RootInode       InodeRef
	InodeCount      uint32
	Compression     CompressionTag
}

// superblockSize is the fixed on-disk size of the Superblock, in
// bytes, little-endian encoded field by field in the order declared
// above.
const superblockSize = 4 + 4 + 4 + 8 + 8 + (8 + 4) + 4 + 1

// Validate checks that a parsed superblock describes a geometry this
// package can operate on.
func (s *Superblock) Validate() error {
	if s.Magic != superblockMagic {
		return fmt.Errorf("archive: bad superblock magic %#x", s.Magic)
	}
	if s.BlockSize == 0 || s.BlockSize != 1<<s.BlockLog {
		return fmt.Errorf("archive: block size %d inconsistent with block log %d", s.BlockSize, s.BlockLog)
	}
	if s.BlockLog <= PageShift {
		return fmt.Errorf("archive: block log %d must exceed page shift %d", s.BlockLog, PageShift)
	}
	return nil
}

// InodeRef locates an inode within the metadata stream: the metadata
// block holding it (relative to InodeTableStart) and the byte offset
// within that block's decompressed payload.
type InodeRef struct {
	Block  int64
	Offset uint16
}

// Inode holds the fields the read path consumes for a regular file.
// Directory and symlink inodes carry their own payloads, parsed by
// DirectoryTree; this type only models what BlockLocator and
// PageFiller need.
type Inode struct {
	InodeNumber uint64
	Size        int64

	// BlockListStart/Offset is the metadata-stream cursor at which
	// this file's block list begins.
	BlockListStart int64
	Offset         uint16

	// StartBlock is the absolute on-disk offset of the file's first
	// datablock.
	StartBlock int64

	// FragmentBlock is the absolute on-disk offset of the shared
	// fragment block holding this file's tail, or InvalidBlock if the
	// file's last block is a full datablock.
	FragmentBlock  int64
	FragmentSize   uint32
	FragmentOffset uint32
}

// HasFragment reports whether the inode's tail is packed into a shared
// fragment block rather than stored as a full final datablock.
func (i *Inode) HasFragment() bool {
	return i.FragmentBlock != InvalidBlock
}

// DecodeSuperblock parses the fixed-size superblock header from the
// first superblockSize bytes of an archive image.
func DecodeSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < superblockSize {
		return nil, fmt.Errorf("archive: superblock buffer has %d bytes, need %d", len(buf), superblockSize)
	}

	sb := &Superblock{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		BlockSize:       binary.LittleEndian.Uint32(buf[4:8]),
		BlockLog:        binary.LittleEndian.Uint32(buf[8:12]),
		InodeTableStart: int64(binary.LittleEndian.Uint64(buf[12:20])),
		DirTableStart:   int64(binary.LittleEndian.Uint64(buf[20:28])),
		RootInode: InodeRef{
			Block:  int64(binary.LittleEndian.Uint64(buf[28:36])),
			Offset: uint16(binary.LittleEndian.Uint32(buf[36:40])),
		},
		InodeCount:  binary.LittleEndian.Uint32(buf[40:44]),
		Compression: CompressionTag(buf[44]),
	}
	return sb, nil
}

// EncodeSuperblock serializes a superblock to its fixed on-disk
// layout. Used only by test fixtures that synthesize archive images.
func EncodeSuperblock(sb *Superblock) []byte {
	buf := make([]byte, superblockSize)
	binary.LittleEndian.PutUint32(buf[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], sb.BlockSize)
	binary.LittleEndian.PutUint32(buf[8:12], sb.BlockLog)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(sb.InodeTableStart))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(sb.DirTableStart))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(sb.RootInode.Block))
	binary.LittleEndian.PutUint32(buf[36:40], uint32(sb.RootInode.Offset))
	binary.LittleEndian.PutUint32(buf[40:44], sb.InodeCount)
	buf[44] = byte(sb.Compression)
	return buf
}
