// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phantomfs/phantom/lib/snapshot"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

// mountRecords mounts a snapshot tree built from the given records
// and returns the mountpoint. Unmounted when the test ends.
func mountRecords(t *testing.T, records []snapshot.Record) string {
	t.Helper()
	fuseAvailable(t)

	mountpoint := filepath.Join(t.TempDir(), "view")
	server, err := mountTree(records, mountpoint, "phantomfs-test", false, false)
	if err != nil {
		t.Fatalf("mountTree: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})
	return mountpoint
}

func TestViewTreeShape(t *testing.T) {
	mountpoint := mountRecords(t, []snapshot.Record{
		{Path: "photos", Kind: snapshot.KindDir},
		{Path: "photos/trip", Kind: snapshot.KindDir},
		{Path: "photos/trip/a.jpg", Kind: snapshot.KindFile, Size: 2048},
		{Path: "notes.txt", Kind: snapshot.KindFile, Size: 11},
		{Path: "config", Kind: snapshot.KindSymlink, Size: 9},
	})

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make(map[string]bool)
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for _, want := range []string{"photos", "notes.txt", "config"} {
		if !names[want] {
			t.Errorf("missing entry %q in %v", want, names)
		}
	}
	if len(entries) != 3 {
		t.Errorf("got %d root entries, want 3", len(entries))
	}

	info, err := os.Stat(filepath.Join(mountpoint, "photos"))
	if err != nil {
		t.Fatalf("Stat photos: %v", err)
	}
	if !info.IsDir() {
		t.Error("photos should be a directory")
	}
	if perm := info.Mode().Perm(); perm != 0o555 {
		t.Errorf("photos perm = %o, want 555", perm)
	}

	info, err = os.Stat(filepath.Join(mountpoint, "photos", "trip", "a.jpg"))
	if err != nil {
		t.Fatalf("Stat a.jpg: %v", err)
	}
	if info.Size() != 2048 {
		t.Errorf("a.jpg size = %d, want the recorded 2048", info.Size())
	}
	if perm := info.Mode().Perm(); perm != 0o444 {
		t.Errorf("a.jpg perm = %o, want 444", perm)
	}

	info, err = os.Lstat(filepath.Join(mountpoint, "config"))
	if err != nil {
		t.Fatalf("Lstat config: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("config mode = %v, want a symlink", info.Mode())
	}
}

func TestViewFileReadsPlaceholder(t *testing.T) {
	mountpoint := mountRecords(t, []snapshot.Record{
		{Path: "report.pdf", Kind: snapshot.KindFile, Size: 5 << 20},
	})

	got, err := os.ReadFile(filepath.Join(mountpoint, "report.pdf"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != placeholder {
		t.Errorf("read %q, want the placeholder", got)
	}

	// Stat still reports the recorded size, not the placeholder's.
	info, err := os.Stat(filepath.Join(mountpoint, "report.pdf"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 5<<20 {
		t.Errorf("size = %d, want %d", info.Size(), 5<<20)
	}
}

func TestViewRejectsWrites(t *testing.T) {
	mountpoint := mountRecords(t, []snapshot.Record{
		{Path: "data.txt", Kind: snapshot.KindFile, Size: 4},
	})

	if err := os.WriteFile(filepath.Join(mountpoint, "data.txt"), []byte("x"), 0o644); err == nil {
		t.Error("overwriting an existing file should fail")
	}
	if err := os.WriteFile(filepath.Join(mountpoint, "new.txt"), []byte("x"), 0o644); err == nil {
		t.Error("creating a file should fail")
	}
	if err := os.Mkdir(filepath.Join(mountpoint, "newdir"), 0o755); err == nil {
		t.Error("creating a directory should fail")
	}
	if err := os.Remove(filepath.Join(mountpoint, "data.txt")); err == nil {
		t.Error("removing a file should fail")
	}
}

func TestViewMissingEntry(t *testing.T) {
	mountpoint := mountRecords(t, []snapshot.Record{
		{Path: "present", Kind: snapshot.KindFile, Size: 1},
	})

	if _, err := os.Stat(filepath.Join(mountpoint, "absent")); !os.IsNotExist(err) {
		t.Errorf("Stat absent = %v, want not-exist", err)
	}
}

func TestViewBuildsMissingParents(t *testing.T) {
	// A record whose parent directories were filtered out of the
	// snapshot still appears at its full path.
	mountpoint := mountRecords(t, []snapshot.Record{
		{Path: "a/b/c.txt", Kind: snapshot.KindFile, Size: 7},
	})

	info, err := os.Stat(filepath.Join(mountpoint, "a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 7 {
		t.Errorf("size = %d, want 7", info.Size())
	}

	info, err = os.Stat(filepath.Join(mountpoint, "a"))
	if err != nil {
		t.Fatalf("Stat a: %v", err)
	}
	if !info.IsDir() {
		t.Error("intermediate entry should be a directory")
	}
}

func TestViewSymlinkHasNoTarget(t *testing.T) {
	mountpoint := mountRecords(t, []snapshot.Record{
		{Path: "link", Kind: snapshot.KindSymlink, Size: 12},
	})

	// Targets are not recorded in snapshots, so readlink fails.
	if _, err := os.Readlink(filepath.Join(mountpoint, "link")); err == nil {
		t.Error("Readlink should fail on a snapshot symlink")
	}
}
