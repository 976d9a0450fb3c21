// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Stamp is the fingerprint sidecar written next to a snapshot. The
// indexer compares Fingerprint against the current state of the tree
// and skips the walk when they match. Entries and UpdatedAt are
// informational.
type Stamp struct {
	Fingerprint int64     `json:"fingerprint"`
	Entries     int       `json:"entries"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WriteStamp atomically replaces the stamp at path. Callers write
// the stamp only after the snapshot itself has been renamed into
// place, so a stamp never vouches for a snapshot that does not
// exist.
func WriteStamp(path string, stamp Stamp) error {
	data, err := json.Marshal(stamp)
	if err != nil {
		return fmt.Errorf("encoding stamp: %w", err)
	}
	data = append(data, '\n')
	return writeFileAtomic(path, data)
}

// ReadStamp loads the stamp at path. A missing file is reported with
// an error wrapping os.ErrNotExist; the indexer treats that as "never
// indexed" rather than a failure.
func ReadStamp(path string) (Stamp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stamp{}, err
	}
	var stamp Stamp
	if err := json.Unmarshal(data, &stamp); err != nil {
		return Stamp{}, fmt.Errorf("stamp %s: %w", path, err)
	}
	return stamp, nil
}
