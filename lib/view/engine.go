// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// engineName is the binary the daemon looks for when no explicit
// engine is configured.
const engineName = "phantomfs"

// FindEngine resolves the cached-view engine binary. An explicit
// override (from configuration) wins; otherwise the engine is looked
// up next to the running executable (the standard co-deployment
// layout), then on PATH. The result is validated before use so a
// misconfigured engine fails at startup, not on the first failover.
func FindEngine(override string, logger *slog.Logger) (string, error) {
	path := override
	if path == "" {
		path = findSiblingBinary(engineName, logger)
	}
	if err := validateBinary(path, engineName); err != nil {
		return "", err
	}
	return path, nil
}

// findSiblingBinary looks for a binary by name, first next to the
// running executable, then on PATH. Returns an empty string if not
// found; the caller validates the result.
func findSiblingBinary(name string, logger *slog.Logger) string {
	executable, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(executable), name)
		if _, err := os.Stat(candidate); err == nil {
			logger.Info("found engine next to daemon", "path", candidate)
			return candidate
		}
	}

	path, err := exec.LookPath(name)
	if err == nil {
		logger.Info("found engine on PATH", "path", path)
		return path
	}

	return ""
}

// validateBinary checks that a binary path points to a regular,
// executable file.
func validateBinary(path, name string) error {
	if path == "" {
		return fmt.Errorf("%s not found (checked next to the daemon binary and PATH)", name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s at %q: %w", name, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s at %q is not a regular file (mode %s)", name, path, info.Mode())
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("%s at %q is not executable (mode %s)", name, path, info.Mode())
	}
	return nil
}
