// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/mqtt2loki/lib/clock"
	"github.com/bureau-foundation/mqtt2loki/lib/testutil"
	"github.com/bureau-foundation/mqtt2loki/lib/topic"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeSubscriber records subscriptions and lets tests deliver
// publishes to the registered handlers.
type fakeSubscriber struct {
	mu           sync.Mutex
	connectError error
	failTopics   map[string]bool
	handlers     map[string]Handler
	connected    bool
	disconnects  int
}

func newFakeSubscriber(failTopics ...string) *fakeSubscriber {
	fake := &fakeSubscriber{
		failTopics: make(map[string]bool),
		handlers:   make(map[string]Handler),
	}
	for _, topicName := range failTopics {
		fake.failTopics[topicName] = true
	}
	return fake
}

func (f *fakeSubscriber) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectError != nil {
		return f.connectError
	}
	f.connected = true
	return nil
}

func (f *fakeSubscriber) Subscribe(_ context.Context, topicName string, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTopics[topicName] {
		return errors.New("not authorized")
	}
	f.handlers[topicName] = handler
	return nil
}

func (f *fakeSubscriber) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

// deliver invokes the handler for topicName, or reports that nothing
// is subscribed.
func (f *fakeSubscriber) deliver(topicName string, payload []byte) bool {
	f.mu.Lock()
	handler, ok := f.handlers[topicName]
	f.mu.Unlock()
	if ok {
		handler(topicName, payload)
	}
	return ok
}

func testRouter(t *testing.T) *topic.Router {
	t.Helper()
	router, err := topic.New([]topic.Device{
		{Label: "kitchen", Topic: "esphome/kitchen/debug"},
		{Label: "garage", Topic: "esphome/garage/debug"},
	})
	if err != nil {
		t.Fatalf("topic.New: %v", err)
	}
	return router
}

func newTestIngestor(t *testing.T, subscriber Subscriber, queue chan Message, clk clock.Clock) *Ingestor {
	t.Helper()
	return New(Config{
		Router:     testRouter(t),
		Subscriber: subscriber,
		Queue:      queue,
		Clock:      clk,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestQueueCapacity(t *testing.T) {
	if got := QueueCapacity(3); got != 1536 {
		t.Fatalf("QueueCapacity(3) = %d, want 1536", got)
	}
	if got := QueueCapacity(0); got != 512 {
		t.Fatalf("QueueCapacity(0) = %d, want 512", got)
	}
}

func TestStartSubscribesAndStampsMessages(t *testing.T) {
	subscriber := newFakeSubscriber()
	queue := make(chan Message, 4)
	fakeClock := clock.Fake(epoch)
	ingestor := newTestIngestor(t, subscriber, queue, fakeClock)

	subscribed, err := ingestor.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(subscribed) != 2 {
		t.Fatalf("subscribed = %v, want both topics", subscribed)
	}

	subscriber.deliver("esphome/kitchen/debug", []byte("first"))
	fakeClock.Advance(time.Millisecond)
	subscriber.deliver("esphome/kitchen/debug", []byte("second"))

	first := <-queue
	second := <-queue
	if first.Payload != "first" || second.Payload != "second" {
		t.Fatalf("payloads = %q, %q; want arrival order", first.Payload, second.Payload)
	}
	if first.Device.Label != "kitchen" {
		t.Fatalf("label = %q, want kitchen", first.Device.Label)
	}
	if first.Timestamp != epoch.UnixNano() {
		t.Fatalf("timestamp = %d, want %d", first.Timestamp, epoch.UnixNano())
	}
	if second.Timestamp != epoch.Add(time.Millisecond).UnixNano() {
		t.Fatalf("second timestamp = %d", second.Timestamp)
	}
}

func TestStartPartialSubscription(t *testing.T) {
	subscriber := newFakeSubscriber("esphome/garage/debug")
	queue := make(chan Message, 4)
	ingestor := newTestIngestor(t, subscriber, queue, clock.Fake(epoch))

	subscribed, err := ingestor.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(subscribed) != 1 || subscribed[0] != "esphome/kitchen/debug" {
		t.Fatalf("subscribed = %v", subscribed)
	}
	if subscriber.deliver("esphome/garage/debug", []byte("lost")) {
		t.Fatal("failed topic has a handler")
	}
	if !subscriber.deliver("esphome/kitchen/debug", []byte("kept")) {
		t.Fatal("subscribed topic has no handler")
	}
	if message := <-queue; message.Payload != "kept" {
		t.Fatalf("payload = %q", message.Payload)
	}
}

func TestStartNoSubscriptions(t *testing.T) {
	subscriber := newFakeSubscriber("esphome/kitchen/debug", "esphome/garage/debug")
	ingestor := newTestIngestor(t, subscriber, make(chan Message, 1), clock.Fake(epoch))

	_, err := ingestor.Start(context.Background())
	if !errors.Is(err, ErrNoSubscriptions) {
		t.Fatalf("Start error = %v, want ErrNoSubscriptions", err)
	}
	if subscriber.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", subscriber.disconnects)
	}
}

func TestStartConnectFailure(t *testing.T) {
	subscriber := newFakeSubscriber()
	subscriber.connectError = errors.New("connection refused")
	ingestor := newTestIngestor(t, subscriber, make(chan Message, 1), clock.Fake(epoch))

	if _, err := ingestor.Start(context.Background()); err == nil {
		t.Fatal("expected a connect error")
	}
	if len(subscriber.handlers) != 0 {
		t.Fatal("subscribed despite a failed connect")
	}
}

func TestInvalidUTF8IsDropped(t *testing.T) {
	subscriber := newFakeSubscriber()
	queue := make(chan Message, 4)
	ingestor := newTestIngestor(t, subscriber, queue, clock.Fake(epoch))
	if _, err := ingestor.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	subscriber.deliver("esphome/kitchen/debug", []byte{0xff, 0xfe})
	subscriber.deliver("esphome/kitchen/debug", []byte("valid"))

	if message := <-queue; message.Payload != "valid" {
		t.Fatalf("payload = %q, want the valid message only", message.Payload)
	}
	if len(queue) != 0 {
		t.Fatalf("%d extra messages queued", len(queue))
	}
}

func TestUnknownTopicIsDropped(t *testing.T) {
	subscriber := newFakeSubscriber()
	queue := make(chan Message, 1)
	ingestor := newTestIngestor(t, subscriber, queue, clock.Fake(epoch))

	// Invoke the handler path directly with a topic the router does
	// not know, as a delivery racing an unsubscribe would.
	ingestor.handle(context.Background(), "esphome/attic/debug", []byte("stray"))
	if len(queue) != 0 {
		t.Fatal("unrouted message was queued")
	}
}

func TestFullQueueBlocksUntilCancelled(t *testing.T) {
	subscriber := newFakeSubscriber()
	queue := make(chan Message, 1)
	ingestor := newTestIngestor(t, subscriber, queue, clock.Fake(epoch))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := ingestor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	subscriber.deliver("esphome/kitchen/debug", []byte("fills the queue"))

	delivered := make(chan struct{})
	go func() {
		subscriber.deliver("esphome/kitchen/debug", []byte("blocks"))
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("delivery into a full queue did not block")
	case <-time.After(50 * time.Millisecond): //nolint:realclock verifying a block
	}

	cancel()
	testutil.RequireClosed(t, delivered, 5*time.Second, "blocked delivery released by cancellation")
	if message := <-queue; message.Payload != "fills the queue" {
		t.Fatalf("queued payload = %q", message.Payload)
	}
}

func TestRunDisconnectsOnCancel(t *testing.T) {
	subscriber := newFakeSubscriber()
	ingestor := newTestIngestor(t, subscriber, make(chan Message, 1), clock.Fake(epoch))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := ingestor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ingestor.Run(ctx) }()
	cancel()

	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Run"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if subscriber.disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", subscriber.disconnects)
	}
}
