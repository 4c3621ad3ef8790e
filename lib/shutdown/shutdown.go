// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shutdown coordinates process-wide cancellation for a set of
// long-running tasks.
//
// A Coordinator owns one context shared by every task. Shutdown is
// triggered by a signal, by an explicit Trigger call, or by any task
// returning: a task that exits on its own (closed upstream, fatal
// error) takes the rest of the process down with it. Triggering is
// idempotent. Wait blocks until every task has returned; nothing is
// force-terminated, so each task decides what finishing means.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrShutdown is the cancellation cause of a Coordinator's context.
// The wrapped message names the reason.
var ErrShutdown = errors.New("shutdown")

// Coordinator broadcasts a single shutdown to a group of tasks.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	logger *slog.Logger
	group  errgroup.Group

	once   sync.Once
	mu     sync.Mutex
	reason string

	waited   sync.Once
	finished chan struct{}
}

// New returns a Coordinator whose context is derived from parent.
// Cancelling parent also shuts the coordinator down.
func New(parent context.Context, logger *slog.Logger) *Coordinator {
	ctx, cancel := context.WithCancelCause(parent)
	return &Coordinator{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		finished: make(chan struct{}),
	}
}

// Context returns the shared context. It is done once shutdown has
// been triggered.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Trigger starts shutdown. Only the first call has an effect.
func (c *Coordinator) Trigger(reason string) {
	triggered := false
	c.once.Do(func() {
		triggered = true
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		c.logger.Info("shutting down", "reason", reason)
		c.cancel(fmt.Errorf("%w: %s", ErrShutdown, reason))
	})
	if !triggered {
		c.logger.Debug("shutdown already in progress", "reason", reason)
	}
}

// Reason returns the reason passed to the first Trigger call, or the
// parent's cancellation error if the parent was cancelled first. It is
// empty while the coordinator is running.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason != "" {
		return c.reason
	}
	if err := c.ctx.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// NotifySignals triggers shutdown on the first of signals received.
// Signals stay captured until Wait returns, so a repeated interrupt
// during draining is ignored rather than killing the process.
func (c *Coordinator) NotifySignals(signals ...os.Signal) {
	received := make(chan os.Signal, 1)
	signal.Notify(received, signals...)
	go func() {
		defer signal.Stop(received)
		c.watch(received)
	}()
}

// watch turns received signals into Trigger calls until Wait returns.
func (c *Coordinator) watch(received <-chan os.Signal) {
	for {
		select {
		case sig := <-received:
			c.Trigger("received signal " + sig.String())
		case <-c.finished:
			return
		}
	}
}

// Go runs task on its own goroutine with the shared context. When
// task returns, for any reason, shutdown is triggered. A non-nil
// error is logged and becomes the first error reported by Wait.
func (c *Coordinator) Go(name string, task func(ctx context.Context) error) {
	c.group.Go(func() error {
		defer c.Trigger(name + " stopped")

		err := task(c.ctx)
		if err != nil {
			c.logger.Error("task failed", "task", name, "error", err)
			return fmt.Errorf("%s: %w", name, err)
		}
		c.logger.Debug("task stopped", "task", name)
		return nil
	})
}

// Wait blocks until every task started with Go has returned and
// reports the first task error.
func (c *Coordinator) Wait() error {
	err := c.group.Wait()
	c.waited.Do(func() { close(c.finished) })
	return err
}
