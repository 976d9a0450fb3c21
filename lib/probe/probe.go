// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe decides whether a resource is currently live and,
// when it is, which path the daemon should publish for it.
package probe

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phantomfs/phantom/lib/catalog"
	"github.com/phantomfs/phantom/lib/mounts"
)

// Status is the outcome of one liveness check. Target is meaningful
// only when Live: the mountpoint for disks and shares, the directory
// itself for local resources.
type Status struct {
	Live   bool
	Target string
}

// Prober evaluates resources against a mount table. The zero value
// probes with no dial timeout; production sets Timeout from the
// catalog config.
type Prober struct {
	// Timeout bounds the TCP reachability dial for share resources.
	// A share probe never blocks past it.
	Timeout time.Duration

	// Dial replaces net.DialTimeout in tests. Nil means the real
	// dialer.
	Dial func(network, address string, timeout time.Duration) (net.Conn, error)
}

// Check dispatches on the resource kind. Probe failures of any sort
// (absent device, unreachable host, unparsable address) are a clean
// "not live", never an error: transient conditions are re-evaluated
// on the next poll.
func (p *Prober) Check(resource catalog.Resource, table mounts.Table) Status {
	switch resource.Kind {
	case catalog.KindDisk:
		return p.checkDisk(resource, table)
	case catalog.KindShare:
		return p.checkShare(resource, table)
	case catalog.KindLocal:
		return p.checkLocal(resource)
	default:
		return Status{}
	}
}

// checkDisk: the device path must exist, and its resolved real path
// must appear as a mount-table source. The published target is that
// source's first mountpoint in table order.
func (p *Prober) checkDisk(resource catalog.Resource, table mounts.Table) Status {
	if _, err := os.Stat(resource.Path); err != nil {
		return Status{}
	}
	device, err := filepath.EvalSymlinks(resource.Path)
	if err != nil {
		return Status{}
	}
	mountpoint, ok := table.Mountpoint(device)
	if !ok {
		return Status{}
	}
	return Status{Live: true, Target: mountpoint}
}

// checkShare: the address must parse, the host must answer a bounded
// TCP dial, and the share must appear among mounted sources.
func (p *Prober) checkShare(resource catalog.Resource, table mounts.Table) Status {
	address, err := catalog.ParseShareAddress(resource.Address)
	if err != nil {
		return Status{}
	}

	conn, err := p.dial("tcp", address.HostPort(), p.Timeout)
	if err != nil {
		return Status{}
	}
	conn.Close()

	for _, source := range shareSources(address) {
		if mountpoint, ok := table.Mountpoint(source); ok {
			return Status{Live: true, Target: mountpoint}
		}
	}
	return Status{}
}

// checkLocal: live iff the directory exists. No mount-table
// correlation and no network involvement.
func (p *Prober) checkLocal(resource catalog.Resource) Status {
	info, err := os.Stat(resource.Path)
	if err != nil || !info.IsDir() {
		return Status{}
	}
	return Status{Live: true, Target: resource.Path}
}

func (p *Prober) dial(network, address string, timeout time.Duration) (net.Conn, error) {
	if p.Dial != nil {
		return p.Dial(network, address, timeout)
	}
	return net.DialTimeout(network, address, timeout)
}

// shareSources lists the spellings under which a share shows up as a
// mount-table source: CIFS style (//host/path) and NFS style
// (host:/path, and host:path as given).
func shareSources(address catalog.ShareAddress) []string {
	trimmed := strings.TrimPrefix(address.Path, "/")
	sources := []string{
		"//" + address.Host + "/" + trimmed,
		address.Host + ":" + address.Path,
	}
	if !strings.HasPrefix(address.Path, "/") {
		sources = append(sources, address.Host+":/"+address.Path)
	}
	return sources
}
