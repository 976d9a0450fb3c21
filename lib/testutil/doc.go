// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for phantom packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so a broken loop
// fails the test after a bounded wait instead of hanging it.
//
// [WriteTree] builds fixture directory trees under a test root from a
// compact map description.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
