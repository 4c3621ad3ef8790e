// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP response handling for the
// Loki client. Push responses carry no payload on success and a short
// plain-text reason on failure; neither is worth reading without a
// limit.
package netutil

import (
	"io"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response body is kept
// for diagnostics.
const MaxErrorBodySize int64 = 4 << 10

// MaxDrainSize bounds how much of a response body is discarded to let
// the transport reuse the connection. Larger bodies are abandoned and
// the connection is closed instead.
const MaxDrainSize int64 = 64 << 10

// ErrorBody reads up to MaxErrorBodySize bytes of an error response
// and returns them trimmed of surrounding whitespace. Read errors are
// ignored: a partial body is still useful in an error message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return strings.TrimSpace(string(data))
}

// DrainAndClose discards up to MaxDrainSize bytes of body and closes
// it.
func DrainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxDrainSize))
	_ = body.Close()
}
