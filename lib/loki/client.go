// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loki is a minimal client for the Loki push API.
//
// A Client pushes one labeled stream per call and reports any failure
// (transport error or non-2xx status) as an error; the caller decides
// whether to retry. There is no partial success within a call.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/mqtt2loki/lib/netutil"
)

// Endpoint paths appended to the configured base URL.
const (
	PushPath  = "/loki/api/v1/push"
	ReadyPath = "/ready"
)

// Compression modes for push bodies.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// defaultTimeout bounds a single request when Config.Timeout is zero.
const defaultTimeout = 10 * time.Second

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the Loki root, e.g. "http://127.0.0.1:3100".
	// Required. A trailing slash is ignored.
	BaseURL string

	// Username and Password enable HTTP basic auth when Username is
	// non-empty.
	Username string
	Password string

	// Timeout bounds each request. Defaults to 10 seconds. Ignored
	// when HTTPClient is set.
	Timeout time.Duration

	// Compression is CompressionNone (default) or CompressionGzip.
	Compression string

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client pushes log streams to Loki. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	baseURL     string
	username    string
	password    string
	compression string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New validates config and returns a Client.
func New(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("loki: BaseURL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("loki: BaseURL must be http or https (got %q)", config.BaseURL)
	}

	compression := config.Compression
	switch compression {
	case "":
		compression = CompressionNone
	case CompressionNone, CompressionGzip:
	default:
		return nil, fmt.Errorf("loki: unknown compression %q", compression)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     baseURL,
		username:    config.Username,
		password:    config.Password,
		compression: compression,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// Push sends values as a single stream labeled label. Values are sent
// in the order given.
func (client *Client) Push(ctx context.Context, label string, values []Value) error {
	body, err := client.encode(PushRequest{
		Streams: []Stream{{
			Stream: StreamLabels{Label: label},
			Values: values,
		}},
	})
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+PushPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("loki: creating push request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if client.compression == CompressionGzip {
		request.Header.Set("Content-Encoding", "gzip")
	}

	response, err := client.do(request)
	if err != nil {
		return err
	}
	defer netutil.DrainAndClose(response.Body)

	client.logger.Debug("loki push response",
		"label", label,
		"values", len(values),
		"status", response.StatusCode,
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &APIError{StatusCode: response.StatusCode, Body: netutil.ErrorBody(response.Body)}
	}
	return nil
}

// Ready reports whether Loki's readiness endpoint answers 2xx. A
// transport failure is returned as an error; a non-2xx answer is
// (false, nil).
func (client *Client) Ready(ctx context.Context) (bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+ReadyPath, nil)
	if err != nil {
		return false, fmt.Errorf("loki: creating ready request: %w", err)
	}

	response, err := client.do(request)
	if err != nil {
		return false, err
	}
	defer netutil.DrainAndClose(response.Body)

	client.logger.Debug("loki ready response", "status", response.StatusCode)
	return response.StatusCode >= 200 && response.StatusCode < 300, nil
}

// do applies authentication and executes request.
func (client *Client) do(request *http.Request) (*http.Response, error) {
	if client.username != "" {
		request.SetBasicAuth(client.username, client.password)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("loki: %s %s: %w", request.Method, request.URL.Path, err)
	}
	return response, nil
}

// encode marshals a push request and applies the configured
// compression.
func (client *Client) encode(push PushRequest) ([]byte, error) {
	encoded, err := json.Marshal(push)
	if err != nil {
		return nil, fmt.Errorf("loki: encoding push request: %w", err)
	}
	if client.compression != CompressionGzip {
		return encoded, nil
	}

	var compressed bytes.Buffer
	writer := gzip.NewWriter(&compressed)
	if _, err := io.Copy(writer, bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("loki: compressing push request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("loki: compressing push request: %w", err)
	}
	return compressed.Bytes(), nil
}
