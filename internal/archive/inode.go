// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"fmt"
)

// inodeRecordSize is the fixed on-disk size of one inode record in the
// metadata stream, in bytes.
const inodeRecordSize = 50

// ReadInode decodes the fixed-size regular-file inode record located
// at ref within the metadata stream. inodeTableStart is the absolute
// device offset of the start of the inode table; ref.Block is
// relative to it, matching the convention MetaEntry.IndexBlock uses.
func ReadInode(metadata *MetadataReader, inodeTableStart int64, ref InodeRef) (*Inode, error) {
	buf := make([]byte, inodeRecordSize)
	if _, _, err := metadata.ReadAt(buf, inodeTableStart+ref.Block, int(ref.Offset), inodeRecordSize); err != nil {
		return nil, fmt.Errorf("archive: reading inode at block %d offset %d: %w", ref.Block, ref.Offset, err)
	}
	return decodeInode(buf), nil
}

func decodeInode(buf []byte) *Inode {
	return &Inode{
		InodeNumber:    binary.LittleEndian.Uint64(buf[0:8]),
		Size:           int64(binary.LittleEndian.Uint64(buf[8:16])),
		BlockListStart: int64(binary.LittleEndian.Uint64(buf[16:24])),
		Offset:         binary.LittleEndian.Uint16(buf[24:26]),
		StartBlock:     int64(binary.LittleEndian.Uint64(buf[26:34])),
		FragmentBlock:  int64(binary.LittleEndian.Uint64(buf[34:42])),
		FragmentSize:   binary.LittleEndian.Uint32(buf[42:46]),
		FragmentOffset: binary.LittleEndian.Uint32(buf[46:50]),
	}
}

// EncodeInode serializes a regular-file inode to its fixed on-disk
// record layout. Used only by test fixtures that synthesize archive
// images; the production read path never writes inodes.
func EncodeInode(inode *Inode) []byte {
	buf := make([]byte, inodeRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], inode.InodeNumber)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(inode.Size))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(inode.BlockListStart))
	binary.LittleEndian.PutUint16(buf[24:26], inode.Offset)
	binary.LittleEndian.PutUint64(buf[26:34], uint64(inode.StartBlock))
	binary.LittleEndian.PutUint64(buf[34:42], uint64(inode.FragmentBlock))
	binary.LittleEndian.PutUint32(buf[42:46], inode.FragmentSize)
	binary.LittleEndian.PutUint32(buf[46:50], inode.FragmentOffset)
	return buf
}
