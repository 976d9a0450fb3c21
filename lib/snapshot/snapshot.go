// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot persists resource tree listings.
//
// A snapshot records one resource's directory tree as it was last
// seen: relative path, entry type, and size for every entry. The
// indexer writes one while its resource is live; the cached-view
// engine reads it to reconstruct the tree once the resource is gone.
// A fingerprint sidecar (the stamp) remembers which state of the
// tree the snapshot captured, so an unchanged tree is never walked
// twice.
//
// Snapshots are written atomically: a reader either sees the previous
// complete snapshot or the new complete snapshot, never a partial
// one.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Entry kinds, stored one byte per record.
const (
	KindFile    byte = 'f'
	KindDir     byte = 'd'
	KindSymlink byte = 'l'
)

// Record describes one entry of the captured tree. Path is relative
// to the resource root and slash-separated. Size is the byte size
// for files and zero for directories; for symlinks it is whatever
// Lstat reported.
type Record struct {
	Path string `cbor:"path"`
	Kind byte   `cbor:"kind"`
	Size int64  `cbor:"size"`
}

// File format: a fixed header followed by the compressed
// CBOR-encoded record array.
//
//	offset 0  magic "PHLS"
//	offset 4  format version (1)
//	offset 5  compression tag
//	offset 6  uncompressed payload length, big-endian uint64
//	offset 14 payload
var magic = [4]byte{'P', 'H', 'L', 'S'}

const (
	formatVersion = 1
	headerLength  = 14
)

// encMode encodes with Core Deterministic Encoding so identical
// trees produce byte-identical snapshots.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// Write atomically replaces the snapshot at path with the given
// records. The data is staged in a temporary file in the same
// directory, synced, and renamed into place; on any failure the
// temporary file is removed and the previous snapshot is left
// untouched.
func Write(path string, records []Record, tag CompressionTag) error {
	payload, err := encMode.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding snapshot records: %w", err)
	}

	stored, storedTag, err := compress(payload, tag)
	if err != nil {
		return fmt.Errorf("compressing snapshot payload: %w", err)
	}

	var header [headerLength]byte
	copy(header[:4], magic[:])
	header[4] = formatVersion
	header[5] = byte(storedTag)
	binary.BigEndian.PutUint64(header[6:], uint64(len(payload)))

	return writeFileAtomic(path, header[:], stored)
}

// Read loads and decodes the snapshot at path. A missing file is
// reported with an error wrapping os.ErrNotExist.
func Read(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) < headerLength {
		return nil, fmt.Errorf("snapshot %s: truncated header (%d bytes)", path, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("snapshot %s: bad magic", path)
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported format version %d", path, data[4])
	}

	tag := CompressionTag(data[5])
	payloadLength := binary.BigEndian.Uint64(data[6:headerLength])

	payload, err := decompress(data[headerLength:], tag, int(payloadLength))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}

	var records []Record
	if err := decMode.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("snapshot %s: decoding records: %w", path, err)
	}
	return records, nil
}

// Exists reports whether a snapshot file is present at path. The
// controller uses this to decide whether a degraded resource can be
// served from cache at all.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeFileAtomic stages the chunks in path+".tmp", syncs, and
// renames over path. The parent directory is synced afterwards so
// the rename survives a power cut.
func writeFileAtomic(path string, chunks ...[]byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	for _, chunk := range chunks {
		if _, err := file.Write(chunk); err != nil {
			file.Close()
			os.Remove(temporaryPath)
			return fmt.Errorf("writing temporary file: %w", err)
		}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
