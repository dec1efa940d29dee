// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package archive

import (
	"fmt"
	"io"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// ArchiveDevice is a read-only memory-mapped view of an archive image
// file. The medium is immutable: there is no writing and no in-place
// mutation, so unlike a read-write cache device there is no write path
// and no separate serialization discipline for writers; every reader
// goes through the same read-only mapping.
type ArchiveDevice struct {
	fd   int
	data []byte // mmap'd MAP_SHARED, PROT_READ
	size int64
}

// OpenArchiveDevice memory-maps the archive image at path read-only.
func OpenArchiveDevice(path string) (*ArchiveDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening archive image %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating archive image: %w", err)
	}
	if stat.Size == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("archive image %s is empty", path)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping archive image: %w", err)
	}

	return &ArchiveDevice{fd: fd, data: data, size: stat.Size}, nil
}

// ReadAt reads len(p) bytes from the device starting at byte offset
// off. Reads go through the memory map — no system call overhead for
// data already resident in the page cache.
func (d *ArchiveDevice) ReadAt(p []byte, off int64) (readCount int, err error) {
	if off < 0 || off >= d.size {
		return 0, io.EOF
	}

	// Guard against SIGBUS from I/O errors on the underlying storage
	// (truncated file, failing disk) surfacing as a page fault instead
	// of a normal read error.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading archive image at offset %d: %v", off, r)
		}
	}()

	readCount = copy(p, d.data[off:])
	if readCount < len(p) {
		return readCount, io.EOF
	}
	return readCount, nil
}

// Size returns the device size in bytes.
func (d *ArchiveDevice) Size() int64 {
	return d.size
}

// Close unmaps the memory region and closes the file descriptor.
func (d *ArchiveDevice) Close() error {
	var firstErr error
	if d.data != nil {
		if err := unix.Munmap(d.data); err != nil {
			firstErr = fmt.Errorf("unmapping archive image: %w", err)
		}
		d.data = nil
	}
	if d.fd >= 0 {
		if err := unix.Close(d.fd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing archive image fd: %w", err)
		}
		d.fd = -1
	}
	return firstErr
}
