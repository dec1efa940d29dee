// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"os"
	"testing"
)

// newTestDevice writes data to a temporary file and memory-maps it
// through OpenArchiveDevice, so tests exercise the real device rather
// than a fake.
func newTestDevice(t *testing.T, data []byte) *ArchiveDevice {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "archive-*.img")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing temp file: %v", err)
	}

	device, err := OpenArchiveDevice(f.Name())
	if err != nil {
		t.Fatalf("OpenArchiveDevice: %v", err)
	}
	t.Cleanup(func() { device.Close() })
	return device
}

// metadataBlockBuilder accumulates metadata-stream bytes (a
// concatenation of framed blocks) and records the absolute device
// offset each logical write began at, so tests can build a cursor to
// hand to MetadataReader/BlockListReader without hand-computing
// offsets.
type metadataBlockBuilder struct {
	base int64 // device offset the metadata stream starts at
	buf  []byte
}

func newMetadataBlockBuilder(base int64) *metadataBlockBuilder {
	return &metadataBlockBuilder{base: base}
}

// writeUncompressedBlock appends one verbatim-stored metadata block
// and returns its start as a (block, offset) cursor.
func (b *metadataBlockBuilder) writeUncompressedBlock(payload []byte) (int64, int) {
	start := b.base + int64(len(b.buf))
	header := make([]byte, 2)
	binary.LittleEndian.PutUint16(header, uint16(len(payload))|metadataUncompressedFlag)
	b.buf = append(b.buf, header...)
	b.buf = append(b.buf, payload...)
	return start, 0
}

// bytes returns the accumulated metadata stream bytes.
func (b *metadataBlockBuilder) bytes() []byte { return b.buf }

// encodeWords little-endian-encodes a slice of block-list words.
func encodeWords(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], w)
	}
	return buf
}
