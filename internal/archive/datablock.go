// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "fmt"

// DataBlockReader reads one compressed datablock at an absolute
// on-disk offset and decompresses it into a caller-supplied buffer.
//
// Like MetadataReader, DataBlockReader holds no mutable state; PageFiller
// is the one that serializes access to its shared scratch buffer, not
// this reader.
type DataBlockReader struct {
	device      *ArchiveDevice
	compression CompressionTag
}

// NewDataBlockReader returns a reader over the datablock stream of an
// archive image compressed with the given algorithm.
func NewDataBlockReader(device *ArchiveDevice, compression CompressionTag) *DataBlockReader {
	return &DataBlockReader{device: device, compression: compression}
}

// Read decompresses one datablock into dest, up to destCapacity bytes.
// word is the raw block-list word for this block (compressed size
// plus the uncompressed flag bit). The caller has already checked
// that CompressedSize(word) != 0 (a hole never reaches Read).
// Returns the number of decompressed bytes written. A failed device
// read or decompression returns an error wrapping ErrReadFailure; a
// destCapacity larger than dest returns a plain error.
func (r *DataBlockReader) Read(dest []byte, offset int64, word uint32, destCapacity int) (int, error) {
	compressedSize := CompressedSize(word)
	if compressedSize == 0 {
		return 0, fmt.Errorf("%w: read_data called on a hole block", ErrReadFailure)
	}
	if destCapacity > len(dest) {
		return 0, fmt.Errorf("archive: destination has %d bytes, capacity %d requested", len(dest), destCapacity)
	}

	raw := make([]byte, compressedSize)
	if _, err := r.device.ReadAt(raw, offset); err != nil {
		return 0, fmt.Errorf("%w: reading %d bytes at offset %d: %v", ErrReadFailure, compressedSize, offset, err)
	}

	if IsUncompressed(word) {
		return copy(dest[:destCapacity], raw), nil
	}

	decoded, err := decompressBlockBounded(raw, r.compression, destCapacity)
	if err != nil {
		return 0, fmt.Errorf("%w: decompressing block at offset %d: %v", ErrReadFailure, offset, err)
	}
	return copy(dest, decoded), nil
}

// ReadExact decompresses one datablock into dest, where the exact
// decompressed size is known in advance rather than merely bounded.
// This is true of every full, non-final datablock of a file: its
// decompressed size is always exactly the archive's block size. word
// is the raw block-list word for this block; the caller has already
// checked that CompressedSize(word) != 0.
func (r *DataBlockReader) ReadExact(dest []byte, offset int64, word uint32, exactSize int) (int, error) {
	compressedSize := CompressedSize(word)
	if compressedSize == 0 {
		return 0, fmt.Errorf("%w: read_data called on a hole block", ErrReadFailure)
	}
	if exactSize > len(dest) {
		return 0, fmt.Errorf("archive: destination has %d bytes, need %d", len(dest), exactSize)
	}

	raw := make([]byte, compressedSize)
	if _, err := r.device.ReadAt(raw, offset); err != nil {
		return 0, fmt.Errorf("%w: reading %d bytes at offset %d: %v", ErrReadFailure, compressedSize, offset, err)
	}

	if IsUncompressed(word) {
		if len(raw) != exactSize {
			return 0, fmt.Errorf("%w: uncompressed block at offset %d has %d bytes, expected %d", ErrReadFailure, offset, len(raw), exactSize)
		}
		return copy(dest, raw), nil
	}

	decoded, err := decompressBlock(raw, r.compression, exactSize)
	if err != nil {
		return 0, fmt.Errorf("%w: decompressing block at offset %d: %v", ErrReadFailure, offset, err)
	}
	return copy(dest, decoded), nil
}
