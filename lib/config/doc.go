// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates mqtt2loki configuration.
//
// Configuration is loaded by [LoadFile] from a single file named by the
// --config flag, which defaults to the MQTT2LOKI_CONFIG environment
// variable. There is no search path and no per-field
// environment override: the file is the single source of truth.
//
// Two file formats are accepted, selected by extension:
//
//   - .yaml, .yml: YAML
//   - .json, .jsonc: JSON with // and /* */ comments and trailing commas
//
// Unknown keys are rejected in both formats so a misspelled section is
// an error rather than silently defaulted.
//
// Credential, URL, and address fields support ${VAR} and
// ${VAR:-default} expansion after loading. ${HOSTNAME} resolves to the
// machine hostname when the environment does not set it.
//
// Key exports:
//
//   - [Config] -- the root struct: System, Devices, Loki, MQTT, Metrics
//   - [Default] -- every field except Devices populated
//   - [LoadFile] -- the entry point for loading
//   - [Config.Validate] -- reports every problem at once
//   - [Duration] -- accepts "10s" or a bare integer number of seconds
package config
