// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// phantomd is the availability daemon. It watches every resource
// declared in <catalog-root>/catalog.yaml, publishes a stable link for
// each one under <catalog-root>/mount/, indexes live resources in the
// background, and fails over to a read-only cached view (served by the
// phantomfs engine from the last snapshot) when a resource goes away.
//
// Consumers only ever resolve the published links; they never learn
// whether a resource is currently live or cached.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/phantomfs/phantom/lib/catalog"
	"github.com/phantomfs/phantom/lib/controller"
	"github.com/phantomfs/phantom/lib/process"
	"github.com/phantomfs/phantom/lib/version"
	"github.com/phantomfs/phantom/lib/view"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		logLevel string
		engine   string
	)

	flagSet := pflag.NewFlagSet("phantomd", pflag.ContinueOnError)
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flagSet.StringVar(&engine, "engine", "", "cached-view engine binary (default: phantomfs next to this binary, then PATH)")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("phantomd %s\n", version.Full())
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		return fmt.Errorf("usage: phantomd [flags] <catalog-root>")
	}
	root := args[0]

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	config, err := catalog.Load(root)
	if err != nil {
		return err
	}

	layout := catalog.Layout{Root: root}
	if err := layout.Ensure(); err != nil {
		return err
	}

	timing, err := config.Timing()
	if err != nil {
		return err
	}

	// The engine is resolved at startup, and only when some resource
	// could ever need a cached view. The flag overrides the config.
	if engine == "" {
		engine = config.Engine
	}
	enginePath := ""
	if needsEngine(config) {
		enginePath, err = view.FindEngine(engine, logger)
		if err != nil {
			return err
		}
	}

	ctrl, err := controller.New(controller.Options{
		Config: config,
		Layout: layout,
		Timing: timing,
		Engine: enginePath,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("phantomd starting",
		"version", version.Info(),
		"root", root,
		"resources", len(config.Resources),
	)
	ctrl.Run(ctx)
	return nil
}

// needsEngine reports whether any resource can enter the cached state.
// Local directories never do, so a catalog of only locals runs without
// a phantomfs binary installed.
func needsEngine(config *catalog.Config) bool {
	for _, resource := range config.Resources {
		if resource.Kind != catalog.KindLocal {
			return true
		}
	}
	return false
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (want debug, info, warn, or error)", s)
	}
}
