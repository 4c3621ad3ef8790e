// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the timeout safety valves shared by the
// pipeline tests. Pipeline tests drive time through lib/clock; the
// helpers here are the only place a real wall-clock timeout appears,
// and only to turn a hung goroutine into a test failure.
package testutil
