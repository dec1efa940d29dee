// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"fmt"
)

// MetadataBlockSize is the maximum decompressed size of one metadata
// block. Metadata blocks hold inode records, directory entries, and
// per-file block lists, all concatenated into one logical stream.
const MetadataBlockSize = 8192

// metadataLengthMask and metadataUncompressedFlag decode a metadata
// block's 2-byte little-endian header: 15 bits of on-disk length, one
// flag bit for verbatim storage. This mirrors the block-list word's
// own flag-bit convention so the two framing schemes read the same
// way.
const (
	metadataLengthMask     = 0x7FFF
	metadataUncompressedFlag = 0x8000
)

// MetadataReader serves byte reads against the logical stream formed
// by concatenating the decompressions of an archive's metadata blocks,
// transparently crossing block boundaries.
//
// MetadataReader holds no mutable state and is safe for concurrent
// use: every call decompresses whatever blocks it needs directly from
// the underlying device. No lock spans a metadata read; this reader
// honors that by not needing one.
type MetadataReader struct {
	device      *ArchiveDevice
	compression CompressionTag
}

// NewMetadataReader returns a reader over the metadata stream of an
// archive image compressed with the given algorithm.
func NewMetadataReader(device *ArchiveDevice, compression CompressionTag) *MetadataReader {
	return &MetadataReader{device: device, compression: compression}
}

// ReadAt reads length bytes from the metadata stream starting at the
// cursor (startBlock, offsetInBlock), both in absolute device-offset
// terms. It returns the cursor advanced past the consumed bytes. dest
// must have length >= length.
func (r *MetadataReader) ReadAt(dest []byte, startBlock int64, offsetInBlock int, length int) (nextStart int64, nextOffset int, err error) {
	if len(dest) < length {
		return 0, 0, fmt.Errorf("archive: metadata read destination has %d bytes, need %d", len(dest), length)
	}

	block := startBlock
	offset := offsetInBlock
	written := 0

	for written < length {
		payload, span, err := r.readBlock(block)
		if err != nil {
			return 0, 0, err
		}
		if offset > len(payload) {
			return 0, 0, fmt.Errorf("archive: metadata cursor offset %d beyond block payload of %d bytes", offset, len(payload))
		}

		available := len(payload) - offset
		take := length - written
		if take > available {
			take = available
		}
		copy(dest[written:written+take], payload[offset:offset+take])
		written += take
		offset += take

		if offset >= len(payload) {
			block += span
			offset = 0
		}
	}

	return block, offset, nil
}

// readBlock decompresses the single metadata block starting at the
// given absolute device offset, returning its decompressed payload and
// the total on-disk span (header + stored bytes) so the caller can
// advance past it.
func (r *MetadataReader) readBlock(blockOffset int64) (payload []byte, span int64, err error) {
	header := make([]byte, 2)
	if _, err := r.device.ReadAt(header, blockOffset); err != nil {
		return nil, 0, fmt.Errorf("archive: reading metadata block header at %d: %w", blockOffset, err)
	}

	word := binary.LittleEndian.Uint16(header)
	storedLength := int(word & metadataLengthMask)
	uncompressed := word&metadataUncompressedFlag != 0
	span = 2 + int64(storedLength)

	raw := make([]byte, storedLength)
	if _, err := r.device.ReadAt(raw, blockOffset+2); err != nil {
		return nil, 0, fmt.Errorf("archive: reading metadata block payload at %d: %w", blockOffset+2, err)
	}

	if uncompressed {
		return raw, span, nil
	}

	decoded, err := decompressBlockBounded(raw, r.compression, MetadataBlockSize)
	if err != nil {
		return nil, 0, fmt.Errorf("archive: decompressing metadata block at %d: %w", blockOffset, err)
	}
	return decoded, span, nil
}
