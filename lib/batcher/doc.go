// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package batcher accumulates queued messages into per-label batches
// and flushes them to Loki.
//
// Data flow:
//
//	ingest.Message queue → Dispatcher.Run → batch (label → values) → Sink.Push per label
//
// Flush triggers:
//   - Size: the message that brings the window to Config.Size flushes
//     inline.
//   - Timeout: a ticker fires every Config.Interval; a non-empty window
//     is flushed, an empty one is left alone. The ticker is never
//     reset, so the timeout is measured from the previous tick, not
//     from the previous flush.
//
// A flush pass pushes every label independently, each under its own
// retry policy, and then empties the window whatever the outcome. A
// label that exhausts its attempts loses that window's lines. On
// shutdown the unflushed window is discarded rather than pushed.
package batcher
