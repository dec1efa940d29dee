// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"fmt"
	"path"
	"strings"

	"github.com/latticefs/squashfuse/lib/codec"
)

// DirEntry is one child of a directory listing: either a regular file
// (Inode populated) or a subdirectory (Dir populated, pointing at
// another listing further in the directory-table stream).
type DirEntry struct {
	Name  string   `cbor:"name"`
	IsDir bool     `cbor:"is_dir"`
	Inode InodeRef `cbor:"inode"`
	Dir   InodeRef `cbor:"dir"`
}

// DirectoryTree resolves slash-separated paths to directory entries by
// walking the archive's directory-table stream. Path resolution sits
// outside the core block-locating read path; this is the thin,
// separately-testable component that makes a mount usable. Listings
// are Core Deterministic CBOR (github.com/fxamacker/cbor/v2 via
// lib/codec), so two builds of the same tree produce byte-identical
// directory-table bytes.
type DirectoryTree struct {
	metadata      *MetadataReader
	dirTableStart int64
	root          InodeRef
}

// NewDirectoryTree returns a tree rooted at root, reading listings from
// the directory-table stream of an archive whose directory table
// begins at dirTableStart.
func NewDirectoryTree(metadata *MetadataReader, dirTableStart int64, root InodeRef) *DirectoryTree {
	return &DirectoryTree{metadata: metadata, dirTableStart: dirTableStart, root: root}
}

// listing decodes the directory listing at ref: a 4-byte little-endian
// length prefix followed by that many bytes of CBOR encoding a
// []DirEntry.
func (t *DirectoryTree) listing(ref InodeRef) ([]DirEntry, error) {
	lengthBuf := make([]byte, 4)
	nextBlock, nextOffset, err := t.metadata.ReadAt(lengthBuf, t.dirTableStart+ref.Block, int(ref.Offset), 4)
	if err != nil {
		return nil, fmt.Errorf("archive: reading directory listing length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lengthBuf)

	payload := make([]byte, length)
	if _, _, err := t.metadata.ReadAt(payload, nextBlock, nextOffset, int(length)); err != nil {
		return nil, fmt.Errorf("archive: reading directory listing payload: %w", err)
	}

	var entries []DirEntry
	if err := codec.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("archive: decoding directory listing: %w", err)
	}
	return entries, nil
}

// Resolve walks name (slash-separated, relative to the archive root)
// and returns the matching entry. The empty path resolves to a
// synthetic entry describing the root directory itself.
func (t *DirectoryTree) Resolve(name string) (DirEntry, error) {
	clean := strings.Trim(path.Clean("/"+name), "/")
	if clean == "" || clean == "." {
		return DirEntry{Name: "", IsDir: true, Dir: t.root}, nil
	}

	ref := t.root
	parts := strings.Split(clean, "/")
	var entry DirEntry

	for i, part := range parts {
		entries, err := t.listing(ref)
		if err != nil {
			return DirEntry{}, err
		}

		found := false
		for _, candidate := range entries {
			if candidate.Name == part {
				entry = candidate
				found = true
				break
			}
		}
		if !found {
			return DirEntry{}, fmt.Errorf("archive: no such entry %q", name)
		}

		if i < len(parts)-1 {
			if !entry.IsDir {
				return DirEntry{}, fmt.Errorf("archive: %q is not a directory", strings.Join(parts[:i+1], "/"))
			}
			ref = entry.Dir
		}
	}
	return entry, nil
}

// List returns the entries of the directory listing at ref.
func (t *DirectoryTree) List(ref InodeRef) ([]DirEntry, error) {
	return t.listing(ref)
}

// Root returns the directory-table reference of the archive's root
// directory.
func (t *DirectoryTree) Root() InodeRef {
	return t.root
}

// EncodeListing serializes a directory listing to its on-disk
// length-prefixed CBOR form. Used only by test fixtures and by the
// (out of scope for this module) image builder that would populate
// DirTableStart.
func EncodeListing(entries []DirEntry) ([]byte, error) {
	payload, err := codec.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("archive: encoding directory listing: %w", err)
	}
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}
