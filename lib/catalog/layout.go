// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	configFileName  = "catalog.yaml"
	mountDirName    = "mount"
	snapshotDirName = ".snapshots"
	snapshotExt     = ".ls"
	stampExt        = ".time"
)

// Layout derives every path the system persists under one catalog
// root:
//
//	<root>/catalog.yaml        configuration (input)
//	<root>/mount/<name>        published link, the consumer-facing path
//	<root>/.snapshots/<name>.ls    snapshot of the resource tree
//	<root>/.snapshots/<name>.time  snapshot fingerprint sidecar
//	<root>/.snapshots/<name>/      cached-view mountpoint while degraded
type Layout struct {
	// Root is the catalog root directory.
	Root string
}

// ConfigPath returns the configuration file location.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.Root, configFileName)
}

// MountDir returns the directory holding published links.
func (l Layout) MountDir() string {
	return filepath.Join(l.Root, mountDirName)
}

// SnapshotDir returns the directory holding snapshots, fingerprints,
// and cached-view mountpoints.
func (l Layout) SnapshotDir() string {
	return filepath.Join(l.Root, snapshotDirName)
}

// Link returns the published link path for a resource.
func (l Layout) Link(name string) string {
	return filepath.Join(l.MountDir(), name)
}

// Snapshot returns the snapshot file path for a resource.
func (l Layout) Snapshot(name string) string {
	return filepath.Join(l.SnapshotDir(), name+snapshotExt)
}

// Stamp returns the fingerprint sidecar path for a resource.
func (l Layout) Stamp(name string) string {
	return filepath.Join(l.SnapshotDir(), name+stampExt)
}

// ViewMount returns the cached-view mountpoint for a resource.
func (l Layout) ViewMount(name string) string {
	return filepath.Join(l.SnapshotDir(), name)
}

// Ensure verifies the root exists and creates the mount and snapshot
// directories. Failure here is startup-fatal: a missing or read-only
// root cannot host a catalog.
func (l Layout) Ensure() error {
	info, err := os.Stat(l.Root)
	if err != nil {
		return fmt.Errorf("catalog root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("catalog root %s is not a directory", l.Root)
	}

	for _, dir := range []string{l.MountDir(), l.SnapshotDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
