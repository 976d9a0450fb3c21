// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"strings"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/phantomfs/phantom/lib/snapshot"
)

// placeholder is what reading any file in the view returns. File
// managers open and read files to pick icons and content types; a
// short valid read that names the condition beats an I/O error.
const placeholder = "This file is not accessible\n"

// treeRoot is the filesystem root. The whole tree is materialized
// from the snapshot records in OnAdd and never changes afterwards.
// All timestamps report the mount time.
type treeRoot struct {
	gofuse.Inode
	records []snapshot.Record
	stamp   time.Time
}

var _ gofuse.InodeEmbedder = (*treeRoot)(nil)
var _ gofuse.NodeOnAdder = (*treeRoot)(nil)
var _ gofuse.NodeGetattrer = (*treeRoot)(nil)

func (r *treeRoot) OnAdd(ctx context.Context) {
	for _, record := range r.records {
		r.add(ctx, record)
	}
}

// add places one record in the tree. Snapshots list parents before
// children in walk order, but a record whose parent directory is
// missing from the snapshot still gets a full chain of intermediate
// directories.
func (r *treeRoot) add(ctx context.Context, record snapshot.Record) {
	parent := &r.Inode
	components := strings.Split(record.Path, "/")
	for _, component := range components[:len(components)-1] {
		child := parent.GetChild(component)
		if child == nil {
			child = parent.NewPersistentInode(ctx, &dirNode{stamp: r.stamp},
				gofuse.StableAttr{Mode: syscall.S_IFDIR})
			parent.AddChild(component, child, true)
		}
		parent = child
	}

	name := components[len(components)-1]
	if parent.GetChild(name) != nil {
		return
	}

	var node gofuse.InodeEmbedder
	var mode uint32
	switch record.Kind {
	case snapshot.KindDir:
		node, mode = &dirNode{stamp: r.stamp}, syscall.S_IFDIR
	case snapshot.KindSymlink:
		node, mode = &linkNode{size: record.Size, stamp: r.stamp}, syscall.S_IFLNK
	default:
		node, mode = &fileNode{size: record.Size, stamp: r.stamp}, syscall.S_IFREG
	}
	parent.AddChild(name, parent.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: mode}), true)
}

func (r *treeRoot) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o555
	out.SetTimes(&r.stamp, &r.stamp, &r.stamp)
	return 0
}

// dirNode is a directory inside the snapshot tree. Lookup and readdir
// are served from the persistent children built in OnAdd.
type dirNode struct {
	gofuse.Inode
	stamp time.Time
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o555
	out.SetTimes(&d.stamp, &d.stamp, &d.stamp)
	return 0
}

// fileNode is a regular file. Stat reports the size the file had when
// the snapshot was taken, so the tree shape matches the resource;
// only the content is gone.
type fileNode struct {
	gofuse.Inode
	size  int64
	stamp time.Time
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(f.size)
	out.Blocks = (out.Size + 511) / 512
	out.SetTimes(&f.stamp, &f.stamp, &f.stamp)
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	// The served content is shorter than the advertised size. Direct
	// I/O gives readers the short-read EOF; the page cache would
	// zero-fill up to the stat size instead.
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (f *fileNode) Read(ctx context.Context, _ gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(placeholder)) {
		return fuse.ReadResultData(nil), 0
	}
	n := copy(dest, placeholder[off:])
	return fuse.ReadResultData(dest[:n]), 0
}

// linkNode is a symlink entry. Snapshot records carry no link
// targets, so readlink is unsupported; the entry exists so the tree
// shape matches the resource.
type linkNode struct {
	gofuse.Inode
	size  int64
	stamp time.Time
}

var _ gofuse.InodeEmbedder = (*linkNode)(nil)
var _ gofuse.NodeGetattrer = (*linkNode)(nil)

func (l *linkNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFLNK | 0o555
	out.Size = uint64(l.size)
	out.SetTimes(&l.stamp, &l.stamp, &l.stamp)
	return 0
}
