// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish maintains the published links: one symlink per
// resource at a fixed visible path, pointing at whichever view of
// the resource is currently active. Consumers follow the link and
// never learn whether they are on live media or a cached view.
package publish

import (
	"errors"
	"fmt"
	"os"
)

// Publish points link at target. A link already pointing at target
// is left untouched; anything else (including a broken link) is
// atomically replaced by creating a temporary symlink and renaming
// it over the old one. Reports whether the filesystem was mutated.
func Publish(link, target string) (changed bool, err error) {
	if current, err := os.Readlink(link); err == nil && current == target {
		return false, nil
	}

	tempPath := link + ".new"
	os.Remove(tempPath) // leftover from a previous interrupted publish
	if err := os.Symlink(target, tempPath); err != nil {
		return false, fmt.Errorf("creating symlink %s -> %s: %w", tempPath, target, err)
	}
	if err := os.Rename(tempPath, link); err != nil {
		os.Remove(tempPath)
		return false, fmt.Errorf("renaming %s -> %s: %w", tempPath, link, err)
	}
	return true, nil
}

// Unpublish removes the link. A link that is already gone is a
// success.
func Unpublish(link string) error {
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing link %s: %w", link, err)
	}
	return nil
}

// Current returns the target the link points at, and whether the
// link exists.
func Current(link string) (string, bool) {
	target, err := os.Readlink(link)
	if err != nil {
		return "", false
	}
	return target, true
}
