// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// RequireReceive reads one value from ch within timeout, or fails the
// test. The timeout is a safety valve so a broken loop hangs the test
// for a bounded time instead of forever.
//
//	state := testutil.RequireReceive(t, transitions, 5*time.Second, "waiting for transition")
func RequireReceive[T any](t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed (or receive a value) within
// timeout, or fails the test. Use for done channels that signal by
// closing.
//
//	testutil.RequireClosed(t, indexer.Done(), 5*time.Second, "indexer exit")
func RequireClosed(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// RequireNotClosed asserts ch is still open right now. A zero-length
// settle wait keeps this a cheap non-flaky negative check.
func RequireNotClosed(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan struct{}, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("channel closed: %s", formatMessage(msgAndArgs))
	default:
	}
}

// formatMessage formats optional message arguments: a bare string, or
// a format string followed by its args.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
