// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog provides the resource catalog: the descriptors for
// every tracked resource, the settings of the availability daemon,
// and the on-disk layout of the catalog root.
//
// Configuration is loaded from a single file, catalog.yaml, at the
// top of the catalog root. There is no discovery and no fallback
// location; the root is the one positional argument of the daemon.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/phantomfs/phantom/lib/snapshot"
)

// Kind identifies how a resource is reached and probed. The set is
// closed; every switch over Kind handles all three.
type Kind string

const (
	// KindDisk is a block device identified by a stable device path
	// (typically /dev/disk/by-uuid/... or /dev/disk/by-label/...).
	// Live when the device is present and mounted.
	KindDisk Kind = "disk"

	// KindShare is a network share identified by an address of the
	// form [user@]host[,port]:remotePath. Live when the host answers
	// a TCP probe and the share is mounted.
	KindShare Kind = "share"

	// KindLocal is a plain local directory. Checked once at daemon
	// startup and never re-evaluated.
	KindLocal Kind = "local"
)

// Resource describes one tracked resource. Loaded from catalog.yaml
// and immutable afterwards.
type Resource struct {
	// Name is the unique key of the resource and the basename of its
	// published link, snapshot file, and cached mountpoint.
	Name string `yaml:"name"`

	// Kind selects the probing strategy.
	Kind Kind `yaml:"kind"`

	// Path is the device path for disk resources and the directory
	// path for local resources. Unused for shares.
	Path string `yaml:"path,omitempty"`

	// Address is the share address for share resources, in the form
	// [user@]host[,port]:remotePath. Unused for other kinds.
	Address string `yaml:"address,omitempty"`
}

// Config is the daemon configuration read from catalog.yaml. Duration
// fields are strings parsed by time.ParseDuration.
type Config struct {
	// PollInterval is how often the mount table is re-read and
	// resources re-evaluated.
	PollInterval string `yaml:"poll_interval,omitempty"`

	// IndexPeriod is how often a live resource is re-indexed.
	IndexPeriod string `yaml:"index_period,omitempty"`

	// ProbeTimeout bounds the TCP reachability probe for shares.
	ProbeTimeout string `yaml:"probe_timeout,omitempty"`

	// ReadyTimeout bounds the wait for a cached view to appear in the
	// mount table after its engine is started.
	ReadyTimeout string `yaml:"ready_timeout,omitempty"`

	// StopTimeout bounds the wait for an engine or indexer to exit
	// during teardown before it is killed.
	StopTimeout string `yaml:"stop_timeout,omitempty"`

	// Compression selects the snapshot payload compression: "none",
	// "lz4", or "zstd".
	Compression string `yaml:"compression,omitempty"`

	// Engine optionally overrides the cached-view engine binary.
	// When empty, a binary named "phantomfs" is looked up next to the
	// daemon executable and then on PATH.
	Engine string `yaml:"engine,omitempty"`

	// Resources are the tracked resources, evaluated in file order.
	Resources []Resource `yaml:"resources"`
}

// Timing holds the parsed duration settings.
type Timing struct {
	PollInterval time.Duration
	IndexPeriod  time.Duration
	ProbeTimeout time.Duration
	ReadyTimeout time.Duration
	StopTimeout  time.Duration
}

// Default returns the built-in configuration. Load overlays the file
// content on top of this.
func Default() *Config {
	return &Config{
		PollInterval: "5s",
		IndexPeriod:  "10s",
		ProbeTimeout: "2s",
		ReadyTimeout: "5s",
		StopTimeout:  "5s",
		Compression:  "zstd",
	}
}

// Load reads and validates catalog.yaml under the given root. The
// file must exist: a catalog root without a configuration is a
// startup-fatal condition, not an empty catalog.
func Load(root string) (*Config, error) {
	layout := Layout{Root: root}

	data, err := os.ReadFile(layout.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("reading catalog config: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(expandVars(data), config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", layout.ConfigPath(), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog config: %w", err)
	}

	return config, nil
}

// Timing parses the duration fields. Call after Validate (or accept
// the parse errors it returns).
func (c *Config) Timing() (Timing, error) {
	var timing Timing
	var errs []error

	parse := func(name, value string, out *time.Duration) {
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, value))
			return
		}
		*out = d
	}

	parse("poll_interval", c.PollInterval, &timing.PollInterval)
	parse("index_period", c.IndexPeriod, &timing.IndexPeriod)
	parse("probe_timeout", c.ProbeTimeout, &timing.ProbeTimeout)
	parse("ready_timeout", c.ReadyTimeout, &timing.ReadyTimeout)
	parse("stop_timeout", c.StopTimeout, &timing.StopTimeout)

	return timing, errors.Join(errs...)
}

// CompressionTag parses the Compression setting.
func (c *Config) CompressionTag() (snapshot.CompressionTag, error) {
	return snapshot.ParseCompressionTag(c.Compression)
}

// Validate checks the configuration for errors, accumulating every
// problem rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Timing(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CompressionTag(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for i, resource := range c.Resources {
		if err := resource.validate(); err != nil {
			errs = append(errs, fmt.Errorf("resources[%d] (%s): %w", i, resource.Name, err))
		}
		if seen[resource.Name] {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate name %q", i, resource.Name))
		}
		seen[resource.Name] = true
	}

	return errors.Join(errs...)
}

func (r Resource) validate() error {
	var errs []error

	switch {
	case r.Name == "":
		errs = append(errs, fmt.Errorf("name is required"))
	case strings.ContainsRune(r.Name, '/'):
		errs = append(errs, fmt.Errorf("name must not contain '/'"))
	case strings.HasPrefix(r.Name, "."):
		errs = append(errs, fmt.Errorf("name must not start with '.'"))
	}

	switch r.Kind {
	case KindDisk:
		if r.Path == "" {
			errs = append(errs, fmt.Errorf("disk resource needs path"))
		} else if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("disk path must be absolute, got %q", r.Path))
		}
		if r.Address != "" {
			errs = append(errs, fmt.Errorf("address is not valid for disk resources"))
		}
	case KindShare:
		if r.Address == "" {
			errs = append(errs, fmt.Errorf("share resource needs address"))
		} else if _, err := ParseShareAddress(r.Address); err != nil {
			errs = append(errs, err)
		}
		if r.Path != "" {
			errs = append(errs, fmt.Errorf("path is not valid for share resources"))
		}
	case KindLocal:
		if r.Path == "" {
			errs = append(errs, fmt.Errorf("local resource needs path"))
		} else if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("local path must be absolute, got %q", r.Path))
		}
		if r.Address != "" {
			errs = append(errs, fmt.Errorf("address is not valid for local resources"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown kind %q (want disk, share, or local)", r.Kind))
	}

	return errors.Join(errs...)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns against the
// process environment, so device paths and share addresses can carry
// per-machine values.
func expandVars(data []byte) []byte {
	return varPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := varPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(string(parts[1])); value != "" {
			return []byte(value)
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return nil
	})
}
