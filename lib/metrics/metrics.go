// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors for the bridge's
// pipeline. A nil *Pipeline is valid and records nothing, so the
// ingest and batcher packages can be used without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mqtt2loki"

// Drop reasons recorded by MessageDropped.
const (
	DropUnknownTopic = "unknown_topic"
	DropInvalidUTF8  = "invalid_utf8"
	DropShutdown     = "shutdown"
)

// Flush triggers recorded by Flushed.
const (
	TriggerSize    = "size"
	TriggerTimeout = "timeout"
)

// Pipeline holds the collectors for one bridge process.
type Pipeline struct {
	messagesReceived    *prometheus.CounterVec
	messagesDropped     *prometheus.CounterVec
	messagesDiscarded   prometheus.Counter
	subscriptionsFailed prometheus.Counter
	flushes             *prometheus.CounterVec
	pushAttempts        *prometheus.CounterVec
	pushFailures        *prometheus.CounterVec
	streamsDropped      *prometheus.CounterVec
	pushDuration        prometheus.Histogram
}

// New creates the collectors and registers them with registerer.
// Registration panics on a duplicate, as with prometheus.MustRegister.
func New(registerer prometheus.Registerer) *Pipeline {
	pipeline := &Pipeline{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages accepted from MQTT and queued for batching.",
		}, []string{"label"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped before reaching the queue.",
		}, []string{"reason"}),
		messagesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_discarded_total",
			Help:      "Batched messages discarded unflushed at shutdown.",
		}),
		subscriptionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_failed_total",
			Help:      "Topic subscriptions that failed at startup.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Flush passes, by trigger.",
		}, []string{"trigger"}),
		pushAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_attempts_total",
			Help:      "Loki push attempts, by device label.",
		}, []string{"label"}),
		pushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Failed Loki push attempts, by device label.",
		}, []string{"label"}),
		streamsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_dropped_total",
			Help:      "Per-label batches abandoned after exhausting retries.",
		}, []string{"label"}),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Duration of individual Loki push attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	registerer.MustRegister(
		pipeline.messagesReceived,
		pipeline.messagesDropped,
		pipeline.messagesDiscarded,
		pipeline.subscriptionsFailed,
		pipeline.flushes,
		pipeline.pushAttempts,
		pipeline.pushFailures,
		pipeline.streamsDropped,
		pipeline.pushDuration,
	)
	return pipeline
}

func (p *Pipeline) MessageReceived(label string) {
	if p == nil {
		return
	}
	p.messagesReceived.WithLabelValues(label).Inc()
}

func (p *Pipeline) MessageDropped(reason string) {
	if p == nil {
		return
	}
	p.messagesDropped.WithLabelValues(reason).Inc()
}

func (p *Pipeline) MessagesDiscarded(count int) {
	if p == nil || count <= 0 {
		return
	}
	p.messagesDiscarded.Add(float64(count))
}

func (p *Pipeline) SubscriptionFailed() {
	if p == nil {
		return
	}
	p.subscriptionsFailed.Inc()
}

func (p *Pipeline) Flushed(trigger string) {
	if p == nil {
		return
	}
	p.flushes.WithLabelValues(trigger).Inc()
}

// PushAttempted records one push attempt, its duration, and whether
// it failed.
func (p *Pipeline) PushAttempted(label string, elapsed time.Duration, err error) {
	if p == nil {
		return
	}
	p.pushAttempts.WithLabelValues(label).Inc()
	p.pushDuration.Observe(elapsed.Seconds())
	if err != nil {
		p.pushFailures.WithLabelValues(label).Inc()
	}
}

func (p *Pipeline) StreamDropped(label string) {
	if p == nil {
		return
	}
	p.streamsDropped.WithLabelValues(label).Inc()
}
