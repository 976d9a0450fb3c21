// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// phantomfs mounts a snapshot as a read-only FUSE filesystem: the
// full tree of an unavailable resource, browsable with real names,
// kinds, and sizes, where reading any file yields a fixed placeholder
// instead of content.
//
// phantomd starts one phantomfs per degraded resource and points the
// published link at its mountpoint. The engine is a plain subprocess:
// it mounts, serves until SIGINT/SIGTERM, unmounts, and exits.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/pflag"

	"github.com/phantomfs/phantom/lib/process"
	"github.com/phantomfs/phantom/lib/snapshot"
	"github.com/phantomfs/phantom/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		debug      bool
		allowOther bool
		fsName     string
	)

	flagSet := pflag.NewFlagSet("phantomfs", pflag.ContinueOnError)
	flagSet.BoolVar(&debug, "debug", false, "log FUSE protocol traffic")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount (needs user_allow_other in /etc/fuse.conf)")
	flagSet.StringVar(&fsName, "name", "phantomfs", "filesystem source name shown in the mount table")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		version.Print("phantomfs")
		return nil
	}

	args := flagSet.Args()
	if len(args) != 2 {
		return fmt.Errorf("usage: phantomfs [flags] <snapshot.ls> <mountpoint>")
	}
	snapshotPath, mountpoint := args[0], args[1]

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	records, err := snapshot.Read(snapshotPath)
	if err != nil {
		return err
	}

	server, err := mountTree(records, mountpoint, fsName, allowOther, debug)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("cached view mounted",
		"snapshot", snapshotPath,
		"mountpoint", mountpoint,
		"entries", len(records),
	)

	go func() {
		<-ctx.Done()
		// A process sitting inside the mount can make this fail; the
		// daemon escalates to kill and detaches lazily in that case.
		if err := server.Unmount(); err != nil {
			logger.Error("unmounting", "error", err)
		}
	}()

	server.Wait()
	logger.Info("cached view unmounted")
	return nil
}

// mountTree builds the in-memory tree from the snapshot records and
// mounts it. The tree is immutable, so the kernel may cache entries
// and attributes for a long time.
func mountTree(records []snapshot.Record, mountpoint, fsName string, allowOther, debug bool) (*fuse.Server, error) {
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", mountpoint, err)
	}

	root := &treeRoot{records: records, stamp: time.Now()}

	entryTimeout := 1 * time.Minute
	attrTimeout := 1 * time.Minute
	negativeTimeout := 1 * time.Second

	server, err := gofuse.Mount(mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     fsName,
			Name:       "phantom",
			AllowOther: allowOther,
			Debug:      debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting cached view at %s: %w", mountpoint, err)
	}
	return server, nil
}
