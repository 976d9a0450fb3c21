// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that waits on timers or tickers accepts a Clock instead of
// calling the time package directly. Production wiring passes Real();
// tests pass Fake(), which stands still until Advance is called, so
// poll loops and grace periods run deterministically.
//
// A test that needs to fire a timer registered by another goroutine
// synchronizes with WaitForTimers first:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go loop(c)
//	c.WaitForTimers(1)
//	c.Advance(10 * time.Second)
package clock
