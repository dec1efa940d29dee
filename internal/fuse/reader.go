// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/latticefs/squashfuse/internal/archive"
)

// fileNode represents a single regular file as a FUSE inode. Reads
// dispatch straight to Archive.ReadFile, which drives PageFiller and
// copies bytes out of the page cache — there is no chunk table or
// other per-node lazy state to build, because the meta-index cache
// this read path is built around lives on the Archive, not per file.
type fileNode struct {
	gofuse.Inode
	options *Options
	inode   *archive.Inode
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(f.inode.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = uint32(f.options.Archive.Superblock().BlockSize)
	return 0
}

// Open is a no-op: archive content is immutable, so the kernel page
// cache is always valid once populated (FOPEN_KEEP_CACHE).
func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *fileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := f.options.Archive.ReadFile(f.inode, off, dest)
	if err != nil {
		f.options.Logger.Error("read failed", "inode", f.inode.InodeNumber, "offset", off, "error", err)
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}
