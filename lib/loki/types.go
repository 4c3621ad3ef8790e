// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loki

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is one log line and its timestamp in Unix nanoseconds. On the
// wire it is the pair ["<nanoseconds>", "<line>"].
type Value struct {
	Timestamp int64
	Line      string
}

// MarshalJSON encodes the value as a two-element string array.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{strconv.FormatInt(v.Timestamp, 10), v.Line})
}

// UnmarshalJSON decodes the two-element string array form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("loki: decoding value: %w", err)
	}
	timestamp, err := strconv.ParseInt(pair[0], 10, 64)
	if err != nil {
		return fmt.Errorf("loki: decoding value timestamp %q: %w", pair[0], err)
	}
	v.Timestamp = timestamp
	v.Line = pair[1]
	return nil
}

// PushRequest is the body of a push. The bridge always sends a single
// stream per request.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one labeled sequence of values.
type Stream struct {
	Stream StreamLabels `json:"stream"`
	Values []Value      `json:"values"`
}

// StreamLabels identifies a stream. Each device is one stream keyed by
// its label.
type StreamLabels struct {
	Label string `json:"label"`
}
