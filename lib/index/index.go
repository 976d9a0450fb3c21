// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package index builds directory-listing snapshots for live
// resources.
//
// An Indexer is a periodic task owned by the availability controller:
// one per resource, running only while the resource is live. Each
// cycle it fingerprints the resource root, and when the fingerprint
// has advanced it walks the tree and atomically replaces the
// snapshot. The stamp (fingerprint sidecar) is persisted only after
// the snapshot rename has succeeded, so a crash between the two
// leaves a stale stamp and forces a re-walk, never the reverse.
package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phantomfs/phantom/lib/clock"
	"github.com/phantomfs/phantom/lib/snapshot"
)

// Options configures an Indexer.
type Options struct {
	// Root is the resource directory to enumerate.
	Root string

	// SnapshotPath is where the listing snapshot is written.
	SnapshotPath string

	// StampPath is where the fingerprint sidecar is written.
	StampPath string

	// Period is the wait between cycles.
	Period time.Duration

	// Compression selects the snapshot payload compression.
	Compression snapshot.CompressionTag

	// Exclude lists absolute paths the walk never descends into.
	// The controller passes the catalog's snapshot directory here so
	// a resource that contains the catalog root never indexes the
	// system's own artifacts.
	Exclude []string

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default. The controller passes a
	// logger carrying the resource name.
	Logger *slog.Logger
}

// Indexer periodically snapshots one resource directory.
type Indexer struct {
	root         string
	snapshotPath string
	stampPath    string
	period       time.Duration
	compression  snapshot.CompressionTag
	exclude      map[string]bool
	clock        clock.Clock
	logger       *slog.Logger
	done         chan struct{}
}

// New returns an Indexer ready to Run.
func New(options Options) *Indexer {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	exclude := make(map[string]bool, len(options.Exclude))
	for _, path := range options.Exclude {
		exclude[filepath.Clean(path)] = true
	}
	return &Indexer{
		root:         options.Root,
		snapshotPath: options.SnapshotPath,
		stampPath:    options.StampPath,
		period:       options.Period,
		compression:  options.Compression,
		exclude:      exclude,
		clock:        options.Clock,
		logger:       options.Logger,
		done:         make(chan struct{}),
	}
}

// Run cycles until ctx is cancelled: one cycle immediately, then one
// per period. A cycle in progress finishes before cancellation is
// observed; walks of slow media are never interrupted mid-tree.
// Closes the Done channel on exit.
//
// Must be called exactly once per Indexer.
func (ix *Indexer) Run(ctx context.Context) {
	defer close(ix.done)

	ix.runCycle()

	ticker := ix.clock.NewTicker(ix.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ix.runCycle()
		case <-ctx.Done():
			return
		}
	}
}

// Done returns a channel that is closed after Run has fully exited.
// Callers block on this to sequence teardown.
func (ix *Indexer) Done() <-chan struct{} {
	return ix.done
}

func (ix *Indexer) runCycle() {
	if _, err := ix.refresh(); err != nil {
		// Last-good snapshot is untouched; retried next cycle.
		ix.logger.Error("indexing failed", "error", err)
	}
}

// refresh performs one cycle. Reports whether the tree was walked;
// an unchanged fingerprint skips all enumeration work.
func (ix *Indexer) refresh() (walked bool, err error) {
	current, err := fingerprint(ix.root)
	if err != nil {
		return false, err
	}

	stamp, err := snapshot.ReadStamp(ix.stampPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		// Unreadable stamp: re-walk rather than wedge.
		ix.logger.Warn("discarding unreadable stamp", "error", err)
		stamp = snapshot.Stamp{}
	}
	if current <= stamp.Fingerprint && snapshot.Exists(ix.snapshotPath) {
		return false, nil
	}

	records, err := ix.enumerate()
	if err != nil {
		return false, err
	}

	if err := snapshot.Write(ix.snapshotPath, records, ix.compression); err != nil {
		return false, err
	}

	// Stamp last: a stamp must never vouch for a snapshot that was
	// not renamed into place.
	err = snapshot.WriteStamp(ix.stampPath, snapshot.Stamp{
		Fingerprint: current,
		Entries:     len(records),
		UpdatedAt:   ix.clock.Now(),
	})
	if err != nil {
		return true, err
	}

	ix.logger.Info("snapshot written",
		"entries", len(records),
		"fingerprint", current)
	return true, nil
}

// enumerate walks the tree under the root, producing one record per
// entry in lexical order. Top-level dot-prefixed entries and excluded
// paths are neither recorded nor descended into. Entries that vanish
// mid-walk are skipped; any other walk error aborts the cycle.
func (ix *Indexer) enumerate() ([]snapshot.Record, error) {
	var records []snapshot.Record

	err := filepath.WalkDir(ix.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == ix.root {
			return nil
		}

		relative, err := filepath.Rel(ix.root, path)
		if err != nil {
			return err
		}
		topLevel := !strings.ContainsRune(relative, filepath.Separator)
		if (topLevel && strings.HasPrefix(relative, ".")) || ix.exclude[filepath.Clean(path)] {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		record := snapshot.Record{Path: filepath.ToSlash(relative)}
		switch {
		case entry.IsDir():
			record.Kind = snapshot.KindDir
		case entry.Type()&fs.ModeSymlink != 0:
			record.Kind = snapshot.KindSymlink
			record.Size = info.Size()
		case entry.Type().IsRegular():
			record.Kind = snapshot.KindFile
			record.Size = info.Size()
		default:
			// Sockets, FIFOs, and devices have no useful cached
			// representation.
			return nil
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// fingerprint is the newest modification time among the root and its
// immediate children, as Unix nanoseconds. Some filesystems never
// update a directory's own mtime, hence the children; changes deeper
// in the tree do not advance the fingerprint, which is the accepted
// cost of keeping the check cheap.
func fingerprint(root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	newest := info.ModTime()

	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if modified := info.ModTime(); modified.After(newest) {
			newest = modified
		}
	}
	return newest.UnixNano(), nil
}
