// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildDirectoryFixture writes a two-level directory tree (root holding
// "file.txt" and subdirectory "sub", "sub" holding "nested.txt") as
// consecutive uncompressed metadata blocks, and returns a device plus
// the InodeRef of each listing.
func buildDirectoryFixture(t *testing.T) (device *ArchiveDevice, root, sub InodeRef) {
	t.Helper()

	builder := newMetadataBlockBuilder(0)

	subEntries := []DirEntry{
		{Name: "nested.txt", IsDir: false, Inode: InodeRef{Block: 100, Offset: 1}},
	}
	subPayload, err := EncodeListing(subEntries)
	if err != nil {
		t.Fatalf("EncodeListing(sub): %v", err)
	}
	subBlock, subOffset := builder.writeUncompressedBlock(subPayload)
	sub = InodeRef{Block: subBlock, Offset: uint16(subOffset)}

	rootEntries := []DirEntry{
		{Name: "file.txt", IsDir: false, Inode: InodeRef{Block: 200, Offset: 2}},
		{Name: "sub", IsDir: true, Dir: sub},
	}
	rootPayload, err := EncodeListing(rootEntries)
	if err != nil {
		t.Fatalf("EncodeListing(root): %v", err)
	}
	rootBlock, rootOffset := builder.writeUncompressedBlock(rootPayload)
	root = InodeRef{Block: rootBlock, Offset: uint16(rootOffset)}

	return newTestDevice(t, builder.bytes()), root, sub
}

func TestDirectoryTreeResolveTopLevel(t *testing.T) {
	device, root, _ := buildDirectoryFixture(t)
	metadata := NewMetadataReader(device, CompressionLZ4)
	tree := NewDirectoryTree(metadata, 0, root)

	entry, err := tree.Resolve("file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.IsDir || entry.Inode.Block != 200 || entry.Inode.Offset != 2 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDirectoryTreeResolveNested(t *testing.T) {
	device, root, _ := buildDirectoryFixture(t)
	metadata := NewMetadataReader(device, CompressionLZ4)
	tree := NewDirectoryTree(metadata, 0, root)

	entry, err := tree.Resolve("sub/nested.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.IsDir || entry.Inode.Block != 100 || entry.Inode.Offset != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDirectoryTreeResolveRoot(t *testing.T) {
	device, root, _ := buildDirectoryFixture(t)
	metadata := NewMetadataReader(device, CompressionLZ4)
	tree := NewDirectoryTree(metadata, 0, root)

	entry, err := tree.Resolve("")
	if err != nil {
		t.Fatalf("Resolve(\"\"): %v", err)
	}
	if !entry.IsDir {
		t.Fatal("empty path should resolve to the root directory")
	}
}

func TestDirectoryTreeResolveNotFound(t *testing.T) {
	device, root, _ := buildDirectoryFixture(t)
	metadata := NewMetadataReader(device, CompressionLZ4)
	tree := NewDirectoryTree(metadata, 0, root)

	if _, err := tree.Resolve("missing.txt"); err == nil {
		t.Fatal("expected an error resolving a nonexistent entry")
	}
}

func TestDirectoryTreeResolveThroughNonDirectory(t *testing.T) {
	device, root, _ := buildDirectoryFixture(t)
	metadata := NewMetadataReader(device, CompressionLZ4)
	tree := NewDirectoryTree(metadata, 0, root)

	if _, err := tree.Resolve("file.txt/nested.txt"); err == nil {
		t.Fatal("expected an error walking through a non-directory path component")
	}
}

func TestDirectoryTreeList(t *testing.T) {
	device, root, sub := buildDirectoryFixture(t)
	metadata := NewMetadataReader(device, CompressionLZ4)
	tree := NewDirectoryTree(metadata, 0, root)

	entries, err := tree.List(tree.Root())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []DirEntry{
		{Name: "file.txt", IsDir: false, Inode: InodeRef{Block: 200, Offset: 2}},
		{Name: "sub", IsDir: true, Dir: sub},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("directory listing mismatch:\n%s", diff)
	}
}
