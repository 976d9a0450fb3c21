// Copyright 2026 The Phantom Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for phantom
// binaries: fatal error reporting to stderr, for errors from run()
// raised before the structured logger is initialized.
package process
