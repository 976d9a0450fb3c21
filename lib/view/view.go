// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package view manages the external cached-filesystem engine: one
// subprocess per cached resource, serving a read-only reconstruction
// of the resource's last snapshot at a dedicated mountpoint.
//
// The engine is an opaque collaborator. The controller only observes
// whether the process is alive and whether the mountpoint appears in
// the mount table; everything else is the engine's business.
package view

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/phantomfs/phantom/lib/mounts"
	"github.com/phantomfs/phantom/lib/snapshot"
)

// Options configures a Handle.
type Options struct {
	// Engine is the engine binary, invoked as
	// "engine <snapshot> <mountpoint>".
	Engine string

	// SnapshotPath is the listing the engine serves. Must exist at
	// Start.
	SnapshotPath string

	// Mountpoint is the directory the engine mounts. Created at
	// Start, removed at Stop.
	Mountpoint string

	// ReadyTimeout bounds the wait for the mountpoint to become
	// ready after the engine starts.
	ReadyTimeout time.Duration

	// StopTimeout bounds the wait for the engine to exit after a
	// terminate request before it is killed.
	StopTimeout time.Duration

	// Ready reports whether the view is serving. Defaults to probing
	// the mount table for the mountpoint.
	Ready func() bool

	// Logger defaults to slog.Default. The controller passes a
	// logger carrying the resource name.
	Logger *slog.Logger
}

// Handle is one engine instance. Not safe for concurrent use: the
// controller owns it and drives Start/Stop/Alive from its own loop.
type Handle struct {
	engine       string
	snapshotPath string
	mountpoint   string
	readyTimeout time.Duration
	stopTimeout  time.Duration
	ready        func() bool
	logger       *slog.Logger

	cmd  *exec.Cmd
	done chan struct{}
}

// New returns a Handle ready to Start.
func New(options Options) *Handle {
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Ready == nil {
		mountpoint := options.Mountpoint
		options.Ready = func() bool {
			table, _, err := mounts.Read()
			return err == nil && table.Mounted(mountpoint)
		}
	}
	return &Handle{
		engine:       options.Engine,
		snapshotPath: options.SnapshotPath,
		mountpoint:   options.Mountpoint,
		readyTimeout: options.ReadyTimeout,
		stopTimeout:  options.StopTimeout,
		ready:        options.Ready,
		logger:       options.Logger,
	}
}

// Mountpoint returns the directory the view is served at.
func (h *Handle) Mountpoint() string {
	return h.mountpoint
}

// Alive reports whether the engine process is running.
func (h *Handle) Alive() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Start launches the engine and waits up to the ready timeout for
// the view to be serving. Starting an already-running handle is a
// no-op success. On failure the engine is killed, the mountpoint
// directory is removed, and the resource stays unpublished.
func (h *Handle) Start() error {
	if h.Alive() {
		return nil
	}
	if h.cmd != nil {
		// Previous engine died on its own; clear any mount it left.
		h.release()
	}

	if !snapshot.Exists(h.snapshotPath) {
		return fmt.Errorf("no snapshot at %s", h.snapshotPath)
	}
	if err := os.MkdirAll(h.mountpoint, 0o755); err != nil {
		return fmt.Errorf("creating mountpoint: %w", err)
	}

	cmd := exec.Command(h.engine, h.snapshotPath, h.mountpoint)
	cmd.Stderr = os.Stderr // engine logs to stderr alongside ours

	if err := cmd.Start(); err != nil {
		os.Remove(h.mountpoint)
		return fmt.Errorf("starting engine: %w", err)
	}

	done := make(chan struct{})
	h.cmd = cmd
	h.done = done

	// Reap the engine in the background to avoid zombies and to let
	// Alive and the readiness wait observe early death.
	go func() {
		waitError := cmd.Wait()
		exitCode := 0
		if waitError != nil {
			var exitErr *exec.ExitError
			if errors.As(waitError, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		close(done)
		h.logger.Info("engine exited",
			"pid", cmd.Process.Pid,
			"exit_code", exitCode)
	}()

	if err := h.waitReady(); err != nil {
		cmd.Process.Kill()
		<-done
		h.release()
		return fmt.Errorf("engine for %s: %w", h.mountpoint, err)
	}

	h.logger.Info("cached view ready",
		"pid", cmd.Process.Pid,
		"mountpoint", h.mountpoint)
	return nil
}

// Stop terminates the engine and removes the mountpoint. Safe to
// call on a stopped or never-started handle. The engine gets the
// stop timeout to exit on its own before it is killed; the
// mountpoint is released regardless.
func (h *Handle) Stop() {
	if h.cmd == nil {
		return
	}

	if h.Alive() {
		h.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-h.done:
		case <-time.After(h.stopTimeout):
			h.logger.Warn("engine ignored terminate request, killing",
				"pid", h.cmd.Process.Pid)
			h.cmd.Process.Kill()
			<-h.done
		}
	}

	h.release()
	h.cmd = nil
	h.done = nil
}

// waitReady polls for the view to be serving, failing early if the
// engine exits first.
func (h *Handle) waitReady() error {
	deadline := time.Now().Add(h.readyTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return fmt.Errorf("engine exited before the view became ready")
		case <-ticker.C:
			if h.ready() {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("view not ready after %v", h.readyTimeout)
			}
		}
	}
}

// release clears the mount and removes the mountpoint directory.
// Both are best-effort: the mount may already be gone, and the
// directory may be busy. A leftover is retried on the next Start or
// Stop.
func (h *Handle) release() {
	unix.Unmount(h.mountpoint, unix.MNT_DETACH)
	os.Remove(h.mountpoint)
}
