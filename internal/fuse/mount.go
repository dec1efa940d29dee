// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/latticefs/squashfuse/internal/archive"
)

var (
	errMountpointRequired = errors.New("fuse: mountpoint is required")
	errArchiveRequired    = errors.New("fuse: archive is required")
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Archive is the opened archive image to serve.
	Archive *archive.Archive

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, records at
	// LevelError and above are written to standard error.
	Logger *slog.Logger
}

// Mount mounts the archive's read-only filesystem at the configured
// mountpoint. The caller must call Unmount on the returned Server when
// done. The mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, errMountpointRequired
	}
	if options.Archive == nil {
		return nil, errArchiveRequired
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("fuse: creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{
		options: &options,
		ref:     options.Archive.Directory().Root(),
	}

	// Archive content never changes after mount, since there is no
	// write path or in-place mutation, so entry and attribute caching
	// can be aggressive. There is no invalidation path to wire up
	// because nothing on the far side ever changes.
	entryTimeout := time.Hour
	attrTimeout := time.Hour
	negativeTimeout := time.Minute

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "latticefs",
			Name:       "squashfuse",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fuse: mounting filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("archive mounted", "mountpoint", options.Mountpoint, "block_size", options.Archive.Superblock().BlockSize)
	return server, nil
}

// dirNode is one directory of the archive's directory table, resolved
// lazily on Lookup/Readdir rather than built eagerly at mount time —
// the same lazy-child idiom as a go-fuse root node that resolves
// children on demand rather than building the whole tree eagerly.
type dirNode struct {
	gofuse.Inode
	options *Options
	ref     archive.InodeRef
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	entries, err := d.options.Archive.Directory().List(d.ref)
	if err != nil {
		d.options.Logger.Error("directory listing failed", "error", err)
		return nil, syscall.EIO
	}

	for _, entry := range entries {
		if entry.Name != name {
			continue
		}

		if entry.IsDir {
			child := d.NewPersistentInode(ctx, &dirNode{options: d.options, ref: entry.Dir}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
			out.Mode = syscall.S_IFDIR | 0o555
			return child, 0
		}

		inode, err := d.options.Archive.Inode(entry.Inode)
		if err != nil {
			d.options.Logger.Error("inode read failed", "name", name, "error", err)
			return nil, syscall.EIO
		}

		child := d.NewPersistentInode(ctx, &fileNode{options: d.options, inode: inode}, gofuse.StableAttr{Mode: syscall.S_IFREG})
		out.Mode = syscall.S_IFREG | 0o444
		out.Size = uint64(inode.Size)
		return child, 0
	}

	return nil, syscall.ENOENT
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := d.options.Archive.Directory().List(d.ref)
	if err != nil {
		d.options.Logger.Error("directory listing failed", "error", err)
		return nil, syscall.EIO
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		mode := uint32(syscall.S_IFREG)
		if entry.IsDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: entry.Name, Mode: mode})
	}
	return &sliceDirStream{entries: out}, 0
}

// sliceDirStream implements gofuse.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool { return s.index < len(s.entries) }

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
