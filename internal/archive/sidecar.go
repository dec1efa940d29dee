// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/latticefs/squashfuse/lib/codec"
)

// SidecarBlockDigest records the BLAKE3 digest of one data block's
// decompressed bytes, keyed by its absolute on-disk offset — the same
// offset BlockLocator resolves for that block.
type SidecarBlockDigest struct {
	Offset int64  `cbor:"offset"`
	Digest []byte `cbor:"digest"`
}

// Sidecar is the optional integrity-verification metadata persisted
// next to an archive image: a volume label, free-form build info, and
// a table of per-datablock BLAKE3 digests used by `squashfuse verify`
// to catch corruption before it reaches a reader, instead of silently
// returning wrong bytes.
type Sidecar struct {
	VolumeLabel string               `cbor:"volume_label"`
	BuildInfo   string               `cbor:"build_info"`
	Blocks      []SidecarBlockDigest `cbor:"blocks"`
}

// blockHashDomain domain-separates latticefs's BLAKE3 usage, grounded
// on lib/artifact/hash.go's domain-separated hashing convention.
const blockHashDomain = "latticefs.block.v1"

// HashBlock computes the domain-separated BLAKE3 digest of one
// decompressed data block's bytes.
func HashBlock(decompressed []byte) []byte {
	h := blake3.New()
	h.Write([]byte(blockHashDomain))
	h.Write(decompressed)
	return h.Sum(nil)
}

// LoadSidecar decodes a sidecar file previously written by
// EncodeSidecar.
func LoadSidecar(data []byte) (*Sidecar, error) {
	var s Sidecar
	if err := codec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("archive: decoding sidecar: %w", err)
	}
	return &s, nil
}

// EncodeSidecar serializes a sidecar to Core Deterministic CBOR.
func EncodeSidecar(s *Sidecar) ([]byte, error) {
	data, err := codec.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("archive: encoding sidecar: %w", err)
	}
	return data, nil
}

func (s *Sidecar) digestIndex() map[int64][]byte {
	index := make(map[int64][]byte, len(s.Blocks))
	for _, b := range s.Blocks {
		index[b.Offset] = b.Digest
	}
	return index
}

// VerifyFile walks every full datablock of inode (the first
// Size >> BlockLog of them) and checks its decompressed content
// against the sidecar's digest table. A trailing partial datablock and
// a fragment tail are not checked. It returns
// the first mismatch found, or nil if every block it has a digest for
// matches. Blocks the sidecar has no digest for are skipped rather
// than treated as failures — a sidecar built before some files were
// added degrades to partial coverage instead of refusing to verify
// anything.
func (a *Archive) VerifyFile(inode *Inode, sidecar *Sidecar) error {
	index := sidecar.digestIndex()
	blocks := inode.Size >> a.superblock.BlockLog
	scratch := make([]byte, 4*ScratchWords)

	for i := int64(0); i < blocks; i++ {
		offset, word, err := a.locator.ReadBlockList(inode, i, scratch)
		if err != nil {
			return fmt.Errorf("archive: resolving block %d of inode %d: %w", i, inode.InodeNumber, err)
		}
		if CompressedSize(word) == 0 {
			continue // hole: nothing to hash
		}
		digest, ok := index[offset]
		if !ok {
			continue
		}

		// Every block this loop visits is a full datablock, so its
		// decompressed size is known exactly: the archive's block size.
		buf := make([]byte, a.superblock.BlockSize)
		n, err := a.dataBlocks.ReadExact(buf, offset, word, int(a.superblock.BlockSize))
		if err != nil {
			return fmt.Errorf("archive: reading block %d of inode %d: %w", i, inode.InodeNumber, err)
		}

		if got := HashBlock(buf[:n]); !bytes.Equal(got, digest) {
			return fmt.Errorf("%w: block %d of inode %d at offset %d", ErrCorruption, i, inode.InodeNumber, offset)
		}
	}
	return nil
}
