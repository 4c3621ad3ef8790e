// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the process scaffolding shared by
// mqtt2loki's main: the structured logger factory and the HTTP server
// that exposes Prometheus metrics and a liveness endpoint.
//
// The package provides building blocks, not a runtime. The binary
// composes them in its own run() function.
package service
