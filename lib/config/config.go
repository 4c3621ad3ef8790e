// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/mqtt2loki/lib/retry"
	"github.com/bureau-foundation/mqtt2loki/lib/topic"
)

// EnvironmentVariable names the config file path used when --config
// is not given.
const EnvironmentVariable = "MQTT2LOKI_CONFIG"

// Log levels and formats accepted in the system section.
var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"json", "text", "auto"}
)

// Compression values accepted for loki.compression.
var Compressions = []string{"none", "gzip"}

// Config is the root configuration.
type Config struct {
	System  SystemConfig   `yaml:"system" json:"system"`
	Devices []DeviceConfig `yaml:"devices" json:"devices"`
	Loki    LokiConfig     `yaml:"loki" json:"loki"`
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// SystemConfig configures process-wide behavior.
type SystemConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFormat is json, text, or auto (text on a terminal, JSON
	// otherwise).
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// DeviceConfig maps one MQTT topic to the Loki label its lines are
// stored under.
type DeviceConfig struct {
	Label string `yaml:"label" json:"label"`
	Topic string `yaml:"topic" json:"topic"`
}

// LokiConfig configures the push endpoint and the batching policy.
type LokiConfig struct {
	// BaseURL is the Loki server root; the push path is appended.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Username and Password enable HTTP basic auth when Username is
	// set.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// BatchSize is the message count that triggers a flush.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// BatchTimeout is the period of the flush timer.
	BatchTimeout Duration `yaml:"batch_timeout" json:"batch_timeout"`

	// Timeout bounds each push request.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// Compression is none or gzip.
	Compression string `yaml:"compression" json:"compression"`

	Retry RetryConfig `yaml:"retry" json:"retry"`
}

// RetryConfig bounds the push attempts for one label in one flush.
type RetryConfig struct {
	Attempts int      `yaml:"attempts" json:"attempts"`
	Backoff  Duration `yaml:"backoff" json:"backoff"`
}

// Policy converts the retry section for retry.Do.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{Attempts: r.Attempts, Delay: r.Backoff.Std()}
}

func retryConfig(policy retry.Policy) RetryConfig {
	return RetryConfig{Attempts: policy.Attempts, Backoff: Duration(policy.Delay)}
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Address   string   `yaml:"address" json:"address"`
	Port      int      `yaml:"port" json:"port"`
	UseTLS    bool     `yaml:"use_tls" json:"use_tls"`
	Username  string   `yaml:"username" json:"username"`
	Password  string   `yaml:"password" json:"password"`
	ClientID  string   `yaml:"client_id" json:"client_id"`
	KeepAlive Duration `yaml:"keep_alive" json:"keep_alive"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Address is the listen address for /metrics and /healthz. Empty
	// disables the endpoint.
	Address string `yaml:"address" json:"address"`
}

// Default returns the configuration every file is decoded on top of.
// Devices is left empty: a config without devices does not validate.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Loki: LokiConfig{
			BaseURL:      "http://127.0.0.1:3100",
			BatchSize:    100,
			BatchTimeout: Duration(10 * time.Second),
			Timeout:      Duration(10 * time.Second),
			Compression:  "none",
			Retry:        retryConfig(retry.Default()),
		},
		MQTT: MQTTConfig{
			Address:   "localhost",
			Port:      1883,
			ClientID:  "mqtt2loki",
			KeepAlive: Duration(5 * time.Second),
		},
	}
}

// LoadFile loads configuration from path on top of [Default] and
// expands variables. It does not validate; call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := cfg.decode(filepath.Ext(path), data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// decode merges data into c according to the file extension.
func (c *Config) decode(extension string, data []byte) error {
	switch strings.ToLower(extension) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		return fmt.Errorf("unsupported config extension %q (want .yaml, .yml, .json, or .jsonc)", extension)
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in the fields
// that commonly carry secrets or deployment-specific addresses.
func (c *Config) expandVariables() {
	vars := map[string]string{}
	if hostname, err := os.Hostname(); err == nil {
		vars["HOSTNAME"] = hostname
	}

	for _, field := range []*string{
		&c.Loki.BaseURL,
		&c.Loki.Username,
		&c.Loki.Password,
		&c.MQTT.Address,
		&c.MQTT.Username,
		&c.MQTT.Password,
		&c.MQTT.ClientID,
		&c.Metrics.Address,
	} {
		*field = expandVars(*field, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. The
// environment takes precedence over vars.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(name); value != "" {
			return value
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(LogLevels, c.System.LogLevel) {
		errs = append(errs, fmt.Errorf("system.log_level must be one of %v, got %q", LogLevels, c.System.LogLevel))
	}
	if !slices.Contains(LogFormats, c.System.LogFormat) {
		errs = append(errs, fmt.Errorf("system.log_format must be one of %v, got %q", LogFormats, c.System.LogFormat))
	}

	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("devices: at least one device is required"))
	}
	seen := make(map[string]string, len(c.Devices))
	for i, device := range c.Devices {
		if device.Label == "" {
			errs = append(errs, fmt.Errorf("devices[%d].label is required", i))
		}
		if device.Topic == "" {
			errs = append(errs, fmt.Errorf("devices[%d].topic is required", i))
			continue
		}
		if topic.HasWildcard(device.Topic) {
			errs = append(errs, fmt.Errorf("devices[%d].topic %q contains an MQTT wildcard (+ or #); list each device topic explicitly", i, device.Topic))
			continue
		}
		if first, ok := seen[device.Topic]; ok {
			errs = append(errs, fmt.Errorf("devices[%d].topic %q already used by device %q", i, device.Topic, first))
			continue
		}
		seen[device.Topic] = device.Label
	}

	if parsed, err := url.Parse(c.Loki.BaseURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("loki.base_url must be an http or https URL, got %q", c.Loki.BaseURL))
	}
	if c.Loki.BatchSize <= 0 {
		errs = append(errs, errors.New("loki.batch_size cannot be 0"))
	}
	if c.Loki.BatchTimeout <= 0 {
		errs = append(errs, errors.New("loki.batch_timeout cannot be 0"))
	}
	if c.Loki.Timeout <= 0 {
		errs = append(errs, errors.New("loki.timeout must be positive"))
	}
	if !slices.Contains(Compressions, c.Loki.Compression) {
		errs = append(errs, fmt.Errorf("loki.compression must be one of %v, got %q", Compressions, c.Loki.Compression))
	}
	if c.Loki.Retry.Attempts < 1 {
		errs = append(errs, errors.New("loki.retry.attempts must be at least 1"))
	}
	if c.Loki.Retry.Backoff < 0 {
		errs = append(errs, errors.New("loki.retry.backoff cannot be negative"))
	}

	if c.MQTT.Address == "" {
		errs = append(errs, errors.New("mqtt.address is required"))
	}
	if c.MQTT.ClientID == "" {
		errs = append(errs, errors.New("mqtt.client_id is required (the session is persistent)"))
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port must be in 1-65535, got %d", c.MQTT.Port))
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, errors.New("mqtt.keep_alive cannot be negative"))
	}

	return errors.Join(errs...)
}

// DeviceList returns the devices in configuration order.
func (c *Config) DeviceList() []topic.Device {
	devices := make([]topic.Device, len(c.Devices))
	for i, device := range c.Devices {
		devices[i] = topic.Device{Label: device.Label, Topic: device.Topic}
	}
	return devices
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	return ParseLogLevel(c.System.LogLevel)
}

// ParseLogLevel parses one of [LogLevels].
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if !slices.Contains(LogLevels, name) {
		return level, fmt.Errorf("unknown log level %q (want one of %v)", name, LogLevels)
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, err
	}
	return level, nil
}

// LogValue renders the configuration for structured logging with
// passwords redacted.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Group("system",
			"log_level", c.System.LogLevel,
			"log_format", c.System.LogFormat,
		),
		slog.Int("devices", len(c.Devices)),
		slog.Group("loki",
			"base_url", c.Loki.BaseURL,
			"username", c.Loki.Username,
			"password", redact(c.Loki.Password),
			"batch_size", c.Loki.BatchSize,
			"batch_timeout", c.Loki.BatchTimeout.String(),
			"timeout", c.Loki.Timeout.String(),
			"compression", c.Loki.Compression,
			"retry_attempts", c.Loki.Retry.Attempts,
			"retry_backoff", c.Loki.Retry.Backoff.String(),
		),
		slog.Group("mqtt",
			"address", c.MQTT.Address,
			"port", c.MQTT.Port,
			"use_tls", c.MQTT.UseTLS,
			"username", c.MQTT.Username,
			"password", redact(c.MQTT.Password),
			"client_id", c.MQTT.ClientID,
			"keep_alive", c.MQTT.KeepAlive.String(),
		),
		slog.String("metrics_address", c.Metrics.Address),
	)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "REDACTED"
}
