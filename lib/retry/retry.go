// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry runs an operation under a bounded-attempt policy with
// a fixed delay between attempts. The delay is taken from an injected
// clock so callers can test their retry behavior without sleeping.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/mqtt2loki/lib/clock"
)

// Policy bounds an operation's attempts.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// Delay is the wait between a failed attempt and the next one.
	// There is no wait after the final attempt.
	Delay time.Duration
}

// Default is the push policy: three attempts two seconds apart.
func Default() Policy {
	return Policy{Attempts: 3, Delay: 2 * time.Second}
}

// ExhaustedError is returned by Do when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (err *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", err.Attempts, err.Last)
}

func (err *ExhaustedError) Unwrap() error { return err.Last }

// Do calls operation until it succeeds or the policy is exhausted.
// The attempt argument starts at 1. If ctx is cancelled while waiting
// between attempts, Do returns ctx.Err() without another call; an
// in-flight call is never interrupted by Do itself.
func Do(ctx context.Context, clk clock.Clock, policy Policy, operation func(ctx context.Context, attempt int) error) error {
	attempts := max(policy.Attempts, 1)

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		last = operation(ctx, attempt)
		if last == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-clk.After(policy.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}
