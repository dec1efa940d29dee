// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive implements the read path of a compressed, read-only
// archival filesystem image: a memory-mapped device, a decompressing
// metadata and data-block reader, the meta-index slot cache that turns
// a per-file logical block index into an on-disk byte offset without
// rescanning the file's block list on every access, and the page-fill
// pipeline that deposits decompressed bytes into a small page cache
// for the FUSE layer to serve.
//
// The package is organized leaf-first, following the file it is
// grounded on (the Linux kernel's squashfs fs/squashfs/file.c):
// ArchiveDevice and the compression helpers sit at the bottom,
// BlockListReader and SkipCalculator above them, SlotTable and
// IndexFiller in the middle, and BlockLocator / PageFiller at the top
// as the two operations the rest of the module calls.
package archive
