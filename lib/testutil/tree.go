// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteTree creates files and directories under root. Map keys are
// slash-separated relative paths; a key ending in "/" creates an
// empty directory, any other key creates a file holding the value.
// Parent directories are created as needed.
//
//	testutil.WriteTree(t, root, map[string]string{
//	    "music/":          "",
//	    "music/a.flac":    "xxxx",
//	    "notes.txt":       "hello",
//	})
func WriteTree(t *testing.T, root string, entries map[string]string) {
	t.Helper()
	for path, content := range entries {
		full := filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(path, "/")))
		if strings.HasSuffix(path, "/") {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatalf("creating fixture directory %s: %v", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("creating fixture parent for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture file %s: %v", path, err)
		}
	}
}
