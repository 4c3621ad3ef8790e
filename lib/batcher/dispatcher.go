// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/mqtt2loki/lib/clock"
	"github.com/bureau-foundation/mqtt2loki/lib/ingest"
	"github.com/bureau-foundation/mqtt2loki/lib/loki"
	"github.com/bureau-foundation/mqtt2loki/lib/metrics"
	"github.com/bureau-foundation/mqtt2loki/lib/retry"
)

// Sink receives one label's values per call. *loki.Client implements
// it; tests substitute a fake. Push may be called concurrently for
// different labels.
type Sink interface {
	Push(ctx context.Context, label string, values []loki.Value) error
}

// Config configures a Dispatcher.
type Config struct {
	// Size is the message count that triggers a flush. Must be
	// positive.
	Size int

	// Interval is the batch timeout period. Must be positive.
	Interval time.Duration

	// Retry bounds the push attempts for each label in a flush.
	Retry retry.Policy

	// Sink, Clock, and Logger are required. Metrics may be nil.
	Sink    Sink
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Pipeline
}

// Dispatcher owns the accumulation window and the flush schedule.
type Dispatcher struct {
	size     int
	interval time.Duration
	retry    retry.Policy
	sink     Sink
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Pipeline
}

// New validates config and returns a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("batcher: batch size must be positive, got %d", config.Size)
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("batcher: batch interval must be positive, got %v", config.Interval)
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("batcher: Sink is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("batcher: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("batcher: Logger is required")
	}
	return &Dispatcher{
		size:     config.Size,
		interval: config.Interval,
		retry:    config.Retry,
		sink:     config.Sink,
		clock:    config.Clock,
		logger:   config.Logger,
		metrics:  config.Metrics,
	}, nil
}

// Run consumes queue until ctx is cancelled or queue is closed. Either
// way the current window is discarded unflushed and Run returns nil.
//
// Each iteration handles exactly one of: a tick, a message, or
// cancellation. When several are ready at once Go's select picks one
// uniformly at random; every trigger is idempotent, so no ordering
// among them is required.
func (d *Dispatcher) Run(ctx context.Context, queue <-chan ingest.Message) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	window := newBatch()
	d.logger.Info("dispatcher running", "batch_size", d.size, "batch_interval", d.interval)

	for {
		select {
		case <-ticker.C:
			d.logger.Debug("batch timeout", "messages", window.count)
			if !window.empty() {
				d.flush(ctx, window, metrics.TriggerTimeout)
			}

		case message, ok := <-queue:
			if !ok {
				d.discard(window, "queue closed")
				return nil
			}
			window.add(message)
			if window.count >= d.size {
				d.logger.Debug("batch size reached", "messages", window.count)
				d.flush(ctx, window, metrics.TriggerSize)
			}

		case <-ctx.Done():
			d.discard(window, "shutdown")
			return nil
		}
	}
}

// flush pushes every label in window concurrently, waits for all of
// them, and resets the window regardless of the outcome. Pushes run on
// a context detached from cancellation: shutdown stops new flushes,
// not the one in progress.
func (d *Dispatcher) flush(ctx context.Context, window *batch, trigger string) {
	pushContext := context.WithoutCancel(ctx)
	labels := window.labels()
	d.logger.Debug("flushing batch",
		"trigger", trigger,
		"messages", window.count,
		"labels", len(labels),
	)

	var wg sync.WaitGroup
	for _, label := range labels {
		values := window.streams[label]
		wg.Go(func() {
			d.pushLabel(pushContext, label, values)
		})
	}
	wg.Wait()

	window.reset()
	d.metrics.Flushed(trigger)
}

// pushLabel delivers one label's values under the retry policy. An
// exhausted label is logged and dropped.
func (d *Dispatcher) pushLabel(ctx context.Context, label string, values []loki.Value) {
	err := retry.Do(ctx, d.clock, d.retry, func(ctx context.Context, attempt int) error {
		d.logger.Debug("loki push attempt", "label", label, "attempt", attempt, "values", len(values))
		started := d.clock.Now()
		err := d.sink.Push(ctx, label, values)
		d.metrics.PushAttempted(label, d.clock.Now().Sub(started), err)
		if err != nil {
			d.logger.Error("loki push failed", "label", label, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		d.logger.Error("dropping batch for label",
			"label", label,
			"values", len(values),
			"error", err,
		)
		d.metrics.StreamDropped(label)
	}
}

// discard drops the unflushed window on exit.
func (d *Dispatcher) discard(window *batch, reason string) {
	if !window.empty() {
		d.logger.Info("discarding unflushed batch", "reason", reason, "messages", window.count)
		d.metrics.MessagesDiscarded(window.count)
	}
	d.logger.Info("dispatcher stopped", "reason", reason)
}
