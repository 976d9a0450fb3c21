// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPublishCreatesLink(t *testing.T) {
	link := filepath.Join(t.TempDir(), "media")

	changed, err := Publish(link, "/srv/media")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !changed {
		t.Error("first Publish should report a mutation")
	}

	target, ok := Current(link)
	if !ok || target != "/srv/media" {
		t.Errorf("Current = %q, %v, want /srv/media, true", target, ok)
	}
}

func TestPublishSameTargetIsNoOp(t *testing.T) {
	link := filepath.Join(t.TempDir(), "media")

	if _, err := Publish(link, "/srv/media"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	changed, err := Publish(link, "/srv/media")
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if changed {
		t.Error("publishing the current target should not mutate the filesystem")
	}

	target, _ := Current(link)
	if target != "/srv/media" {
		t.Errorf("Current = %q, want /srv/media", target)
	}
}

func TestPublishReplacesTarget(t *testing.T) {
	link := filepath.Join(t.TempDir(), "media")

	if _, err := Publish(link, "/srv/old"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	changed, err := Publish(link, "/srv/new")
	if err != nil {
		t.Fatalf("replacing Publish: %v", err)
	}
	if !changed {
		t.Error("replacing the target should report a mutation")
	}

	target, _ := Current(link)
	if target != "/srv/new" {
		t.Errorf("Current = %q, want /srv/new", target)
	}
	if _, err := os.Lstat(link + ".new"); !errors.Is(err, os.ErrNotExist) {
		t.Error("temporary link left behind")
	}
}

func TestPublishReplacesBrokenLink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "media")
	if err := os.Symlink(filepath.Join(dir, "vanished"), link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	changed, err := Publish(link, "/srv/media")
	if err != nil {
		t.Fatalf("Publish over a broken link: %v", err)
	}
	if !changed {
		t.Error("replacing a broken link should report a mutation")
	}
	target, _ := Current(link)
	if target != "/srv/media" {
		t.Errorf("Current = %q, want /srv/media", target)
	}
}

func TestPublishBrokenLinkWithCorrectTargetIsNoOp(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "media")
	target := filepath.Join(dir, "not-yet-created")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	changed, err := Publish(link, target)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if changed {
		t.Error("a link already naming the target needs no mutation, broken or not")
	}
}

func TestUnpublish(t *testing.T) {
	link := filepath.Join(t.TempDir(), "media")

	if _, err := Publish(link, "/srv/media"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := Unpublish(link); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if _, ok := Current(link); ok {
		t.Error("link should be gone after Unpublish")
	}

	if err := Unpublish(link); err != nil {
		t.Errorf("Unpublish on a missing link should succeed, got %v", err)
	}
}
