// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultSharePort is the TCP port probed when a share address does
// not name one (SMB).
const DefaultSharePort = 445

// ShareAddress is the parsed form of a share resource address,
// [user@]host[,port]:remotePath. The first ':' separates the host
// part from the remote path, so IPv6 literal hosts are not
// representable in this form.
type ShareAddress struct {
	User string
	Host string
	Port int
	Path string
}

// ParseShareAddress parses s into its parts. Port defaults to
// DefaultSharePort; user may be empty.
func ParseShareAddress(s string) (ShareAddress, error) {
	address := ShareAddress{Port: DefaultSharePort}

	hostPart, path, found := strings.Cut(s, ":")
	if !found {
		return address, fmt.Errorf("share address %q: missing ':' before remote path", s)
	}
	if path == "" {
		return address, fmt.Errorf("share address %q: empty remote path", s)
	}
	address.Path = path

	if user, rest, found := strings.Cut(hostPart, "@"); found {
		if user == "" {
			return address, fmt.Errorf("share address %q: empty user before '@'", s)
		}
		address.User = user
		hostPart = rest
	}

	if host, portText, found := strings.Cut(hostPart, ","); found {
		port, err := strconv.Atoi(portText)
		if err != nil {
			return address, fmt.Errorf("share address %q: port %q is not a number", s, portText)
		}
		if port < 1 || port > 65535 {
			return address, fmt.Errorf("share address %q: port %d out of range", s, port)
		}
		address.Port = port
		hostPart = host
	}

	if hostPart == "" {
		return address, fmt.Errorf("share address %q: empty host", s)
	}
	address.Host = hostPart

	return address, nil
}

// HostPort returns the dial target for the reachability probe.
func (a ShareAddress) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// String reassembles the canonical [user@]host[,port]:path form.
func (a ShareAddress) String() string {
	var b strings.Builder
	if a.User != "" {
		b.WriteString(a.User)
		b.WriteByte('@')
	}
	b.WriteString(a.Host)
	if a.Port != DefaultSharePort {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(a.Port))
	}
	b.WriteByte(':')
	b.WriteString(a.Path)
	return b.String()
}
