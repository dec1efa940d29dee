// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for the
// metadata stream and the data-block stream of an archive image. The
// tag is a superblock-level choice: every block in the image uses the
// same algorithm (individual blocks may still be stored verbatim via
// the per-word "uncompressed" flag).
type CompressionTag uint8

const (
	// CompressionLZ4 is the fast default: good ratio on mixed binary
	// content at several GB/s decode.
	CompressionLZ4 CompressionTag = 0

	// CompressionZstd trades decode speed for a better ratio on
	// text-like content (source trees, logs, configs).
	CompressionZstd CompressionTag = 1
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string name,
// the inverse of String for the known tags.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("archive: unknown compression tag %q", name)
	}
}

// decompressBlockBounded decompresses a block whose exact decompressed
// size is not known in advance, only an upper bound (the metadata
// block size, or a page-fill destination capacity). Used by
// MetadataReader, where a block's true size is discovered only by
// decompressing it, and by DataBlockReader, which is handed a
// capacity rather than an exact size (the final block of a file may
// be shorter than a full block, and the caller does not always know
// which case it is in advance).
func decompressBlockBounded(compressed []byte, tag CompressionTag, maxSize int) ([]byte, error) {
	switch tag {
	case CompressionLZ4:
		destination := make([]byte, maxSize)
		n, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return destination[:n], nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, maxSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) > maxSize {
			return nil, fmt.Errorf("zstd decompress: %d bytes exceeds bound %d", len(result), maxSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("archive: unsupported compression tag: %d", tag)
	}
}

// decompressBlock decompresses a single compressed block (metadata or
// data) whose decompressed size is known in advance. Verbatim-stored
// blocks (the per-word "uncompressed" flag) never reach this function
// — callers check that flag first and copy directly.
func decompressBlock(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)
	default:
		return nil, fmt.Errorf("archive: unsupported compression tag: %d", tag)
	}
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdDecoder is reused across calls to avoid repeated initialization
// overhead. zstd.Decoder is safe for concurrent use.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// compressBlock is used only by test fixtures that synthesize archive
// images in memory; the production read path never compresses.
func compressBlock(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 {
			// Incompressible: fall back to storing verbatim is the
			// caller's job (it controls the uncompressed flag); here
			// we just report failure to compress.
			return nil, fmt.Errorf("lz4 compress: incompressible")
		}
		return destination[:written], nil

	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil

	default:
		return nil, fmt.Errorf("archive: unsupported compression tag: %d", tag)
	}
}
