// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package batcher

import (
	"slices"

	"github.com/bureau-foundation/mqtt2loki/lib/ingest"
	"github.com/bureau-foundation/mqtt2loki/lib/loki"
)

// batch is the current accumulation window. Only the dispatcher
// goroutine touches it.
type batch struct {
	streams map[string][]loki.Value
	count   int
}

func newBatch() *batch {
	return &batch{streams: make(map[string][]loki.Value)}
}

// add appends message to its label's stream, preserving arrival order.
func (b *batch) add(message ingest.Message) {
	label := message.Device.Label
	b.streams[label] = append(b.streams[label], loki.Value{
		Timestamp: message.Timestamp,
		Line:      message.Payload,
	})
	b.count++
}

func (b *batch) empty() bool { return b.count == 0 }

// labels returns the labels present in the window, sorted.
func (b *batch) labels() []string {
	labels := make([]string, 0, len(b.streams))
	for label := range b.streams {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// reset starts a new window.
func (b *batch) reset() {
	clear(b.streams)
	b.count = 0
}
