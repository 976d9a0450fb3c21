// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package mounts reads the kernel mount table.
//
// The availability daemon consults the table every poll tick. Read
// returns the parsed table together with a fingerprint of the raw
// bytes, so a caller can skip parsing and per-resource evaluation
// entirely while the table has not changed.
package mounts

import (
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

const mountInfoPath = "/proc/self/mountinfo"

// Entry is one mount: what is mounted (a device path like /dev/sda1,
// a CIFS source like //host/share, an NFS source like host:/export),
// where, and the filesystem type.
type Entry struct {
	Source     string
	Mountpoint string
	FSType     string
}

// Table is the mount table in kernel order.
type Table []Entry

// Fingerprint identifies one observed state of the mount table. Two
// reads with equal fingerprints saw byte-identical tables.
type Fingerprint [32]byte

// Read returns the current mount table and its fingerprint.
func Read() (Table, Fingerprint, error) {
	data, err := os.ReadFile(mountInfoPath)
	if err != nil {
		return nil, Fingerprint{}, fmt.Errorf("reading %s: %w", mountInfoPath, err)
	}
	return Parse(data), blake3.Sum256(data), nil
}

// Parse extracts entries from mountinfo-format bytes. Malformed lines
// are skipped. Exposed for tests; production goes through Read.
//
// mountinfo fields: mount ID, parent ID, major:minor, root,
// mountpoint, options, zero or more optional fields, a lone "-",
// fstype, source, super options.
func Parse(data []byte) Table {
	var table Table
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}

		separator := -1
		for i := 6; i < len(fields); i++ {
			if fields[i] == "-" {
				separator = i
				break
			}
		}
		if separator < 0 || separator+2 >= len(fields) {
			continue
		}

		table = append(table, Entry{
			Source:     unescape(fields[separator+2]),
			Mountpoint: unescape(fields[4]),
			FSType:     fields[separator+1],
		})
	}
	return table
}

// Mountpoint returns the mountpoint of the first entry whose source
// equals source, in table order. When a source is mounted in several
// places the first one wins; the choice is arbitrary and not
// guaranteed stable across reads.
func (t Table) Mountpoint(source string) (string, bool) {
	for _, entry := range t {
		if entry.Source == source {
			return entry.Mountpoint, true
		}
	}
	return "", false
}

// Mounted reports whether any entry is mounted exactly at path.
func (t Table) Mounted(path string) bool {
	for _, entry := range t {
		if entry.Mountpoint == path {
			return true
		}
	}
	return false
}

// unescape decodes the \ooo octal escapes the kernel uses for
// whitespace and backslashes in mountinfo paths.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }
