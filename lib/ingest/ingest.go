// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest turns MQTT publish events into queued messages.
//
// The Ingestor subscribes to every configured topic, resolves each
// delivery to its device, stamps it with the receive time, and sends
// it on a bounded channel. A full channel blocks the transport's
// delivery goroutine: that stall is the bridge's only backpressure
// toward the broker. Cancellation always releases a blocked send.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/bureau-foundation/mqtt2loki/lib/clock"
	"github.com/bureau-foundation/mqtt2loki/lib/metrics"
	"github.com/bureau-foundation/mqtt2loki/lib/topic"
)

// queueSlotsPerDevice sizes the queue so that ordinary bursts from
// every device fit without blocking the transport.
const queueSlotsPerDevice = 512

// QueueCapacity returns the queue capacity for deviceCount devices.
func QueueCapacity(deviceCount int) int {
	return queueSlotsPerDevice * max(deviceCount, 1)
}

// ErrNoSubscriptions is returned by Start when no topic could be
// subscribed. The pipeline must not start in that case.
var ErrNoSubscriptions = errors.New("ingest: no topic subscription succeeded")

// Message is one publish event ready for batching. It is passed by
// value and never modified after creation.
type Message struct {
	// Timestamp is the receive time in Unix nanoseconds.
	Timestamp int64

	// Payload is the publish payload as text.
	Payload string

	// Device is the device the topic resolved to.
	Device topic.Device
}

// Handler receives one publish event. The transport calls it
// sequentially from a single goroutine.
type Handler func(topic string, payload []byte)

// Subscriber is the messaging transport as the Ingestor sees it.
// lib/mqtt provides the production implementation.
type Subscriber interface {
	// Connect establishes the broker connection. Reconnection after
	// a later connection loss is the transport's responsibility.
	Connect(ctx context.Context) error

	// Subscribe registers handler for topic at the lowest delivery
	// guarantee (at most once).
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Disconnect closes the connection. Safe to call once after
	// Connect.
	Disconnect()
}

// Config configures an Ingestor. Every field except Metrics is
// required.
type Config struct {
	Router     *topic.Router
	Subscriber Subscriber
	Queue      chan<- Message
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *metrics.Pipeline
}

// Ingestor owns the transport connection for the process lifetime.
type Ingestor struct {
	router     *topic.Router
	subscriber Subscriber
	queue      chan<- Message
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Pipeline
}

// New returns an Ingestor. Panics if a required dependency is nil.
func New(config Config) *Ingestor {
	if config.Router == nil {
		panic("ingest: Router is required")
	}
	if config.Subscriber == nil {
		panic("ingest: Subscriber is required")
	}
	if config.Queue == nil {
		panic("ingest: Queue is required")
	}
	if config.Clock == nil {
		panic("ingest: Clock is required")
	}
	if config.Logger == nil {
		panic("ingest: Logger is required")
	}
	return &Ingestor{
		router:     config.Router,
		subscriber: config.Subscriber,
		queue:      config.Queue,
		clock:      config.Clock,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}
}

// Start connects and subscribes to every routed topic. Individual
// subscription failures are logged and skipped; if none succeed, the
// connection is closed and Start returns ErrNoSubscriptions. Returns
// the topics that were subscribed.
//
// ctx must be the pipeline's lifetime context: handlers registered
// here use it to abandon a blocked enqueue on shutdown.
func (i *Ingestor) Start(ctx context.Context) ([]string, error) {
	if err := i.subscriber.Connect(ctx); err != nil {
		return nil, fmt.Errorf("ingest: connecting: %w", err)
	}

	handler := func(topicName string, payload []byte) {
		i.handle(ctx, topicName, payload)
	}

	var subscribed []string
	for _, topicName := range i.router.Topics() {
		i.logger.Debug("subscribing", "topic", topicName)
		if err := i.subscriber.Subscribe(ctx, topicName, handler); err != nil {
			i.logger.Error("subscription failed", "topic", topicName, "error", err)
			i.metrics.SubscriptionFailed()
			continue
		}
		i.logger.Debug("subscribed", "topic", topicName)
		subscribed = append(subscribed, topicName)
	}

	if len(subscribed) == 0 {
		i.subscriber.Disconnect()
		return nil, ErrNoSubscriptions
	}
	if missing := i.router.Len() - len(subscribed); missing > 0 {
		i.logger.Warn("running with reduced topic coverage",
			"subscribed", len(subscribed),
			"failed", missing,
		)
	}
	return subscribed, nil
}

// Run blocks until ctx is cancelled, then disconnects the transport.
// Delivery happens on the transport's goroutine between Start and the
// end of Run.
func (i *Ingestor) Run(ctx context.Context) error {
	<-ctx.Done()
	i.logger.Info("ingestion stopping")
	i.subscriber.Disconnect()
	return nil
}

// handle converts one publish event into a Message and enqueues it.
// Every failure is contained to the single event.
func (i *Ingestor) handle(ctx context.Context, topicName string, payload []byte) {
	device, err := i.router.Resolve(topicName)
	if err != nil {
		i.logger.Error("dropping message for unrouted topic", "topic", topicName, "error", err)
		i.metrics.MessageDropped(metrics.DropUnknownTopic)
		return
	}

	timestamp := i.clock.Now().UnixNano()

	if !utf8.Valid(payload) {
		i.logger.Error("dropping message with non-UTF-8 payload",
			"label", device.Label,
			"topic", topicName,
			"bytes", len(payload),
		)
		i.metrics.MessageDropped(metrics.DropInvalidUTF8)
		return
	}

	message := Message{
		Timestamp: timestamp,
		Payload:   string(payload),
		Device:    device,
	}
	i.logger.Debug("received", "label", device.Label, "topic", topicName, "bytes", len(payload))

	select {
	case i.queue <- message:
		i.metrics.MessageReceived(device.Label)
	case <-ctx.Done():
		i.metrics.MessageDropped(metrics.DropShutdown)
	}
}
