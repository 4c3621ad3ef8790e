// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package topic maps MQTT subscription topics to the devices that
// publish on them. A Router is built once from configuration and is
// read-only afterwards, so it is shared between goroutines without
// locking.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Device is a logical log source: the Loki label its lines are filed
// under and the MQTT topic they arrive on.
type Device struct {
	Label string
	Topic string
}

// ErrUnknownTopic is returned by Resolve for a topic that was never
// registered. The transport only delivers subscribed topics, so this
// indicates a delivery race or a wiring bug.
var ErrUnknownTopic = errors.New("topic: no device registered for topic")

// ErrWildcardTopic is returned by New for a topic containing an MQTT
// wildcard. Deliveries carry the concrete topic, which an exact lookup
// can never match.
var ErrWildcardTopic = errors.New("topic: wildcards are not supported")

// HasWildcard reports whether topic contains the MQTT wildcard
// characters + or #.
func HasWildcard(topic string) bool {
	return strings.ContainsAny(topic, "+#")
}

// DuplicateTopicError reports two devices declaring the same topic.
type DuplicateTopicError struct {
	Topic  string
	First  string
	Second string
}

func (err *DuplicateTopicError) Error() string {
	return fmt.Sprintf("topic: %q is declared by both %q and %q", err.Topic, err.First, err.Second)
}

// Router resolves topics to devices.
type Router struct {
	devices map[string]Device
	order   []string
}

// New builds a Router. Every device needs a non-empty label and a
// non-empty topic without wildcards, and no topic may appear twice.
func New(devices []Device) (*Router, error) {
	router := &Router{
		devices: make(map[string]Device, len(devices)),
		order:   make([]string, 0, len(devices)),
	}
	for index, device := range devices {
		if device.Label == "" {
			return nil, fmt.Errorf("topic: device %d has an empty label", index)
		}
		if device.Topic == "" {
			return nil, fmt.Errorf("topic: device %q has an empty topic", device.Label)
		}
		if HasWildcard(device.Topic) {
			return nil, fmt.Errorf("%w: device %q topic %q", ErrWildcardTopic, device.Label, device.Topic)
		}
		if existing, ok := router.devices[device.Topic]; ok {
			return nil, &DuplicateTopicError{Topic: device.Topic, First: existing.Label, Second: device.Label}
		}
		router.devices[device.Topic] = device
		router.order = append(router.order, device.Topic)
	}
	return router, nil
}

// Resolve returns the device registered for topic.
func (r *Router) Resolve(topic string) (Device, error) {
	device, ok := r.devices[topic]
	if !ok {
		return Device{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	return device, nil
}

// Topics returns the registered topics in registration order. The
// slice is a copy.
func (r *Router) Topics() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered devices.
func (r *Router) Len() int {
	return len(r.order)
}
