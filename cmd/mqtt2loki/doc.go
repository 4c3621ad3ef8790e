// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mqtt2loki forwards MQTT debug output from a fleet of devices into
// Grafana Loki.
//
// Each configured device pairs an MQTT topic with a Loki label. Every
// message received on a topic becomes one log line in the stream
// {label="<label>"}, timestamped at receipt. Lines are batched and
// pushed when the batch reaches loki.batch_size messages or every
// loki.batch_timeout, whichever comes first.
//
// The process runs two tasks: ingestion (MQTT callbacks feeding a
// bounded queue) and dispatch (batching and pushing). SIGINT or
// SIGTERM stops both; a batch still accumulating at that moment is
// discarded, while a push already in flight completes.
//
// Usage:
//
//	mqtt2loki [--config config.yaml] [--log-level debug] [--check]
//
// Exit status is 0 after a clean shutdown and 1 when startup fails:
// invalid configuration, broker connection failure, or no successful
// subscription.
package main
