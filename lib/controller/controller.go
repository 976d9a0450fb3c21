// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller drives the per-resource availability state
// machine.
//
// Every resource is in exactly one of three states: live (the real
// path is reachable and published), cached (the engine serves the
// last snapshot and its mountpoint is published), or unavailable
// (nothing is published). The controller polls the mount table,
// probes each resource, and on every transition stops the task that
// no longer applies, starts the one that does, and repoints the
// published link. An indexer runs only while its resource is live; a
// view only while it is cached; never both.
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/phantomfs/phantom/lib/catalog"
	"github.com/phantomfs/phantom/lib/clock"
	"github.com/phantomfs/phantom/lib/index"
	"github.com/phantomfs/phantom/lib/mounts"
	"github.com/phantomfs/phantom/lib/probe"
	"github.com/phantomfs/phantom/lib/publish"
	"github.com/phantomfs/phantom/lib/snapshot"
	"github.com/phantomfs/phantom/lib/view"
)

// state is one resource's availability.
type state int

const (
	stateUnavailable state = iota
	stateLive
	stateCached
)

func (s state) String() string {
	switch s {
	case stateUnavailable:
		return "unavailable"
	case stateLive:
		return "live"
	case stateCached:
		return "cached"
	default:
		return "invalid"
	}
}

// indexTask is the per-resource background indexer. Satisfied by
// *index.Indexer; tests substitute fakes.
type indexTask interface {
	Run(ctx context.Context)
	Done() <-chan struct{}
}

// viewHandle is the per-resource cached-engine lifecycle. Satisfied
// by *view.Handle; tests substitute fakes.
type viewHandle interface {
	Start() error
	Stop()
	Alive() bool
	Mountpoint() string
}

// Options configures a Controller. Config, Layout, and Timing are
// required and assumed validated; the function fields are test seams
// defaulting to the real implementations.
type Options struct {
	Config *catalog.Config
	Layout catalog.Layout
	Timing catalog.Timing

	// Engine is the resolved cached-view engine binary. May be empty
	// when no resource can ever need a cached view.
	Engine string

	Logger *slog.Logger
	Clock  clock.Clock

	// ReadTable supplies the current mount table and its
	// fingerprint. Defaults to reading /proc/self/mountinfo.
	ReadTable func() (mounts.Table, mounts.Fingerprint, error)

	// Probe evaluates one resource's liveness against a table.
	// Defaults to a probe.Prober with the configured timeout.
	Probe func(resource catalog.Resource, table mounts.Table) probe.Status

	// NewIndexer builds the indexer for a resource rooted at its
	// live target path.
	NewIndexer func(resource catalog.Resource, root string, logger *slog.Logger) indexTask

	// NewView builds the cached-view handle for a resource.
	NewView func(resource catalog.Resource, logger *slog.Logger) viewHandle
}

// resourceState is one resource's runtime state, owned exclusively
// by the controller loop.
type resourceState struct {
	resource catalog.Resource
	logger   *slog.Logger

	state      state
	liveTarget string

	indexer       indexTask
	indexerCancel context.CancelFunc

	view viewHandle
}

// Controller owns the state machines for every configured resource.
type Controller struct {
	layout catalog.Layout
	timing catalog.Timing
	logger *slog.Logger
	clock  clock.Clock

	readTable  func() (mounts.Table, mounts.Fingerprint, error)
	probe      func(resource catalog.Resource, table mounts.Table) probe.Status
	newIndexer func(resource catalog.Resource, root string, logger *slog.Logger) indexTask
	newView    func(resource catalog.Resource, logger *slog.Logger) viewHandle

	polled []*resourceState // disk and share resources, re-evaluated every poll
	locals []*resourceState // local resources, checked once at startup

	runCtx          context.Context
	lastFingerprint mounts.Fingerprint
	fingerprintSeen bool
}

// New builds a Controller from validated configuration.
func New(options Options) (*Controller, error) {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.ReadTable == nil {
		options.ReadTable = mounts.Read
	}
	if options.Probe == nil {
		prober := &probe.Prober{Timeout: options.Timing.ProbeTimeout}
		options.Probe = prober.Check
	}

	compression, err := options.Config.CompressionTag()
	if err != nil {
		return nil, err
	}

	layout := options.Layout
	timing := options.Timing
	clk := options.Clock
	if options.NewIndexer == nil {
		options.NewIndexer = func(resource catalog.Resource, root string, logger *slog.Logger) indexTask {
			return index.New(index.Options{
				Root:         root,
				SnapshotPath: layout.Snapshot(resource.Name),
				StampPath:    layout.Stamp(resource.Name),
				Period:       timing.IndexPeriod,
				Compression:  compression,
				Exclude:      []string{layout.SnapshotDir()},
				Clock:        clk,
				Logger:       logger,
			})
		}
	}
	engine := options.Engine
	if options.NewView == nil {
		options.NewView = func(resource catalog.Resource, logger *slog.Logger) viewHandle {
			return view.New(view.Options{
				Engine:       engine,
				SnapshotPath: layout.Snapshot(resource.Name),
				Mountpoint:   layout.ViewMount(resource.Name),
				ReadyTimeout: timing.ReadyTimeout,
				StopTimeout:  timing.StopTimeout,
				Logger:       logger,
			})
		}
	}

	c := &Controller{
		layout:     options.Layout,
		timing:     options.Timing,
		logger:     options.Logger,
		clock:      options.Clock,
		readTable:  options.ReadTable,
		probe:      options.Probe,
		newIndexer: options.NewIndexer,
		newView:    options.NewView,
	}
	for _, resource := range options.Config.Resources {
		rs := &resourceState{
			resource: resource,
			logger:   options.Logger.With("resource", resource.Name),
			state:    stateUnavailable,
		}
		if resource.Kind == catalog.KindLocal {
			c.locals = append(c.locals, rs)
		} else {
			c.polled = append(c.polled, rs)
		}
	}
	return c, nil
}

// Run drives the controller until ctx is cancelled, then stops every
// active indexer and view, each within its grace period, and
// returns. Published links are left in place: a link that still
// names a reachable target stays usable while the daemon is down.
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx

	c.publishLocals()
	c.poll()

	ticker := c.clock.NewTicker(c.timing.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.poll()
		case <-ctx.Done():
			c.shutdown()
			return
		}
	}
}

// publishLocals evaluates local directory resources exactly once.
// They are never probed again and never get an indexer or a cached
// view: a plain directory that disappears mid-run has no failover
// story, and one that exists needs no snapshot.
func (c *Controller) publishLocals() {
	for _, rs := range c.locals {
		status := c.probe(rs.resource, nil)
		link := c.layout.Link(rs.resource.Name)
		if !status.Live {
			rs.logger.Warn("local directory missing, leaving unpublished",
				"path", rs.resource.Path)
			if err := publish.Unpublish(link); err != nil {
				rs.logger.Error("removing stale link", "error", err)
			}
			continue
		}
		if _, err := publish.Publish(link, status.Target); err != nil {
			rs.logger.Error("publishing local directory", "error", err)
			continue
		}
		rs.state = stateLive
		rs.logger.Info("resource live", "target", status.Target)
	}
}

// poll re-evaluates every polled resource against a fresh mount
// table. When the table fingerprint is unchanged and no cached
// engine has died, the whole pass is skipped.
func (c *Controller) poll() {
	table, fingerprint, err := c.readTable()
	if err != nil {
		c.logger.Error("reading mount table", "error", err)
		return
	}

	if c.fingerprintSeen && fingerprint == c.lastFingerprint && !c.anyViewDead() {
		return
	}
	c.lastFingerprint = fingerprint
	c.fingerprintSeen = true

	for _, rs := range c.polled {
		c.evaluate(rs, table)
	}
}

// anyViewDead reports whether a cached resource's engine has exited.
// A lazily-detached mount can keep the table fingerprint stable
// after an engine crash, so liveness is checked directly.
func (c *Controller) anyViewDead() bool {
	for _, rs := range c.polled {
		if rs.state == stateCached && rs.view != nil && !rs.view.Alive() {
			return true
		}
	}
	return false
}

// evaluate drives one resource's state machine for one tick. Every
// failure is logged and isolated: no resource's trouble may stall
// the loop or another resource.
func (c *Controller) evaluate(rs *resourceState, table mounts.Table) {
	status := c.probe(rs.resource, table)
	switch {
	case status.Live:
		c.toLive(rs, status.Target)
	case snapshot.Exists(c.layout.Snapshot(rs.resource.Name)):
		c.toCached(rs)
	default:
		c.toUnavailable(rs)
	}
}

// toLive publishes the real path and ensures an indexer is running
// against it. A live resource whose target moved (same device,
// different mountpoint) is republished and its indexer restarted at
// the new root.
func (c *Controller) toLive(rs *resourceState, target string) {
	if rs.view != nil {
		rs.view.Stop()
		rs.view = nil
	}

	if rs.indexer == nil || rs.liveTarget != target {
		c.stopIndexer(rs)
		indexerCtx, cancel := context.WithCancel(c.runCtx)
		rs.indexer = c.newIndexer(rs.resource, target, rs.logger)
		rs.indexerCancel = cancel
		go rs.indexer.Run(indexerCtx)
	}

	if _, err := publish.Publish(c.layout.Link(rs.resource.Name), target); err != nil {
		rs.logger.Error("publishing live target", "error", err)
	}

	if rs.state != stateLive || rs.liveTarget != target {
		rs.logger.Info("resource live", "target", target)
	}
	rs.state = stateLive
	rs.liveTarget = target
}

// toCached stops indexing, brings up the cached view, and publishes
// its mountpoint. Only entered when a snapshot exists; a view that
// fails to start demotes the resource to unavailable, to be retried
// on a later tick.
func (c *Controller) toCached(rs *resourceState) {
	if rs.state == stateCached && rs.view != nil && rs.view.Alive() {
		return
	}

	c.stopIndexer(rs)

	if rs.view == nil {
		rs.view = c.newView(rs.resource, rs.logger)
	}
	if err := rs.view.Start(); err != nil {
		rs.logger.Error("starting cached view", "error", err)
		c.toUnavailable(rs)
		return
	}

	if _, err := publish.Publish(c.layout.Link(rs.resource.Name), rs.view.Mountpoint()); err != nil {
		rs.logger.Error("publishing cached view", "error", err)
	}

	if rs.state != stateCached {
		rs.logger.Info("resource cached", "mountpoint", rs.view.Mountpoint())
	}
	rs.state = stateCached
	rs.liveTarget = ""
}

// toUnavailable stops whatever is running and removes the published
// link. The resource disappears from the mount directory until it
// comes back.
func (c *Controller) toUnavailable(rs *resourceState) {
	c.stopIndexer(rs)
	if rs.view != nil {
		rs.view.Stop()
		rs.view = nil
	}

	if err := publish.Unpublish(c.layout.Link(rs.resource.Name)); err != nil {
		rs.logger.Error("removing published link", "error", err)
	}

	if rs.state != stateUnavailable {
		rs.logger.Info("resource unavailable")
	}
	rs.state = stateUnavailable
	rs.liveTarget = ""
}

// stopIndexer cancels the resource's indexer and waits for it to
// exit, bounded by the stop timeout. A walk stuck on dead media can
// outlive the wait; the goroutine is then abandoned with a warning
// rather than allowed to stall the loop.
func (c *Controller) stopIndexer(rs *resourceState) {
	if rs.indexer == nil {
		return
	}
	rs.indexerCancel()
	select {
	case <-rs.indexer.Done():
	case <-c.clock.After(c.timing.StopTimeout):
		rs.logger.Warn("indexer did not stop within the grace period")
	}
	rs.indexer = nil
	rs.indexerCancel = nil
}

// shutdown drains every active task. Cancellation is fanned out
// first so indexers wind down in parallel; each is then waited for
// within its own grace period. One resource failing to stop never
// blocks the others.
func (c *Controller) shutdown() {
	started := time.Now()

	for _, rs := range c.polled {
		if rs.indexerCancel != nil {
			rs.indexerCancel()
		}
	}
	for _, rs := range c.polled {
		c.stopIndexer(rs)
		if rs.view != nil {
			rs.view.Stop()
			rs.view = nil
		}
	}

	c.logger.Info("controller stopped", "elapsed", time.Since(started))
}
