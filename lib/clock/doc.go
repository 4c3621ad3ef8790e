// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for the bridge's pipeline.
//
// Everything that waits on time (the dispatcher's batch ticker, the
// retry backoff between push attempts, the ingestion timestamp) takes
// a [Clock] instead of calling the time package directly. Production
// wiring passes [Real]; tests pass [Fake] and drive time explicitly:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go dispatcher.Run(ctx, queue)
//	fakeClock.WaitForTimers(1)          // the batch ticker is registered
//	fakeClock.Advance(60 * time.Second) // fire the batch timeout
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
