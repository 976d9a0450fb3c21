// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/phantomfs/phantom/lib/clock"
	"github.com/phantomfs/phantom/lib/snapshot"
	"github.com/phantomfs/phantom/lib/testutil"
)

func newTestIndexer(t *testing.T, options Options) *Indexer {
	t.Helper()
	if options.Root == "" {
		options.Root = filepath.Join(t.TempDir(), "resource")
		if err := os.MkdirAll(options.Root, 0o755); err != nil {
			t.Fatalf("creating resource root: %v", err)
		}
	}
	if options.SnapshotPath == "" {
		snapshotDir := t.TempDir()
		options.SnapshotPath = filepath.Join(snapshotDir, "media.ls")
		options.StampPath = filepath.Join(snapshotDir, "media.time")
	}
	if options.Period == 0 {
		options.Period = 10 * time.Second
	}
	return New(options)
}

func recordPaths(records []snapshot.Record) []string {
	paths := make([]string, 0, len(records))
	for _, record := range records {
		paths = append(paths, record.Path)
	}
	return paths
}

func TestRefreshWritesSnapshotAndStamp(t *testing.T) {
	ix := newTestIndexer(t, Options{})
	testutil.WriteTree(t, ix.root, map[string]string{
		"docs/":          "",
		"docs/notes.txt": "hello",
		"readme.md":      "hi",
	})

	walked, err := ix.refresh()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !walked {
		t.Error("first refresh should walk the tree")
	}

	records, err := snapshot.Read(ix.snapshotPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"docs", "docs/notes.txt", "readme.md"}
	if got := recordPaths(records); !reflect.DeepEqual(got, want) {
		t.Errorf("record paths = %v, want %v", got, want)
	}

	stamp, err := snapshot.ReadStamp(ix.stampPath)
	if err != nil {
		t.Fatalf("ReadStamp: %v", err)
	}
	if stamp.Entries != len(records) {
		t.Errorf("stamp.Entries = %d, want %d", stamp.Entries, len(records))
	}
	if stamp.Fingerprint == 0 {
		t.Error("stamp.Fingerprint should be set")
	}
}

func TestRefreshRecordsKindsAndSizes(t *testing.T) {
	ix := newTestIndexer(t, Options{})
	testutil.WriteTree(t, ix.root, map[string]string{
		"empty/":   "",
		"body.bin": "12345678",
	})
	if err := os.Symlink("body.bin", filepath.Join(ix.root, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	if _, err := ix.refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	records, err := snapshot.Read(ix.snapshotPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	byPath := make(map[string]snapshot.Record)
	for _, record := range records {
		byPath[record.Path] = record
	}
	if got := byPath["empty"]; got.Kind != snapshot.KindDir {
		t.Errorf("empty = %+v, want dir", got)
	}
	if got := byPath["body.bin"]; got.Kind != snapshot.KindFile || got.Size != 8 {
		t.Errorf("body.bin = %+v, want file of 8 bytes", got)
	}
	if got := byPath["link"]; got.Kind != snapshot.KindSymlink {
		t.Errorf("link = %+v, want symlink", got)
	}
}

func TestUnchangedTreeSkipsEnumeration(t *testing.T) {
	ix := newTestIndexer(t, Options{})
	testutil.WriteTree(t, ix.root, map[string]string{"a.txt": "a"})

	if _, err := ix.refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	walked, err := ix.refresh()
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if walked {
		t.Error("unchanged tree should skip the walk")
	}
}

func TestAdvancedFingerprintForcesWalk(t *testing.T) {
	ix := newTestIndexer(t, Options{})
	testutil.WriteTree(t, ix.root, map[string]string{"a.txt": "a"})

	if _, err := ix.refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	testutil.WriteTree(t, ix.root, map[string]string{"b.txt": "b"})
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(ix.root, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	walked, err := ix.refresh()
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if !walked {
		t.Error("advanced fingerprint should force a walk")
	}

	records, err := snapshot.Read(ix.snapshotPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"a.txt", "b.txt"}
	if got := recordPaths(records); !reflect.DeepEqual(got, want) {
		t.Errorf("record paths = %v, want %v", got, want)
	}
}

func TestMissingSnapshotForcesWalk(t *testing.T) {
	ix := newTestIndexer(t, Options{})
	testutil.WriteTree(t, ix.root, map[string]string{"a.txt": "a"})

	if _, err := ix.refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := os.Remove(ix.snapshotPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	walked, err := ix.refresh()
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if !walked {
		t.Error("missing snapshot should force a walk despite a fresh stamp")
	}
	if !snapshot.Exists(ix.snapshotPath) {
		t.Error("snapshot should be recreated")
	}
}

func TestDotEntriesAndExcludesSkipped(t *testing.T) {
	root := filepath.Join(t.TempDir(), "resource")
	testutil.WriteTree(t, root, map[string]string{
		".hidden":            "x",
		".stash/deep.txt":    "x",
		"data/.nested/f.txt": "x",
		"skipme/inner.txt":   "x",
	})

	ix := newTestIndexer(t, Options{
		Root:    root,
		Exclude: []string{filepath.Join(root, "skipme")},
	})
	if _, err := ix.refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	records, err := snapshot.Read(ix.snapshotPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"data", "data/.nested", "data/.nested/f.txt"}
	if got := recordPaths(records); !reflect.DeepEqual(got, want) {
		t.Errorf("record paths = %v, want %v", got, want)
	}
}

func TestFailedCycleKeepsLastGoodSnapshot(t *testing.T) {
	ix := newTestIndexer(t, Options{})
	testutil.WriteTree(t, ix.root, map[string]string{"a.txt": "a"})

	if _, err := ix.refresh(); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	before, err := snapshot.Read(ix.snapshotPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if err := os.RemoveAll(ix.root); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, err := ix.refresh(); err == nil {
		t.Fatal("refresh with a vanished root should fail")
	}

	after, err := snapshot.Read(ix.snapshotPath)
	if err != nil {
		t.Fatalf("Read after failed refresh: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Error("failed cycle should leave the last-good snapshot untouched")
	}
}

func TestRunCyclesAndStops(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ix := newTestIndexer(t, Options{Clock: fake})
	testutil.WriteTree(t, ix.root, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)

	// The first cycle runs before the ticker is registered.
	fake.WaitForTimers(1)
	if !snapshot.Exists(ix.snapshotPath) {
		t.Fatal("first cycle should have written a snapshot")
	}

	testutil.WriteTree(t, ix.root, map[string]string{"b.txt": "b"})
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(ix.root, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	fake.Advance(ix.period)
	waitFor(t, func() bool {
		records, err := snapshot.Read(ix.snapshotPath)
		return err == nil && len(records) == 2
	}, "snapshot to pick up the new file")

	testutil.RequireNotClosed(t, ix.Done(), "indexer should still be running before cancel")
	cancel()
	testutil.RequireClosed(t, ix.Done(), time.Second, "indexer should stop on cancel")
}

// waitFor polls condition until it holds or the deadline passes.
// State changes driven by the Run goroutine are only observable
// through the filesystem, hence polling.
func waitFor(t *testing.T, condition func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
