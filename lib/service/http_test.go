// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- HTTPServer lifecycle ---

func TestHTTPServerLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mqtt2loki_test_total",
		Help: "Test counter.",
	})
	registry.MustRegister(counter)
	counter.Add(7)

	server := NewHTTPServer(HTTPServerConfig{
		Address:         "127.0.0.1:0", // OS-assigned port
		Handler:         MetricsHandler(registry, nil),
		ShutdownTimeout: 2 * time.Second,
		Logger:          logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	// t.Context() is cancelled when the test deadline passes, so no
	// wall-clock timeout is needed.
	select {
	case <-server.Ready():
	case <-t.Context().Done():
		t.Fatal("server did not become ready before test deadline")
	}

	response, err := http.Get("http://" + server.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", response.StatusCode)
	}
	body, _ := io.ReadAll(response.Body)
	if !strings.Contains(string(body), "mqtt2loki_test_total 7") {
		t.Errorf("GET /metrics body missing counter:\n%s", body)
	}

	cancel()

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-t.Context().Done():
		t.Fatal("server did not shut down before test deadline")
	}
}

func TestHTTPServerListenError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:99999",
		Handler: http.NotFoundHandler(),
		Logger:  logger,
	})
	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve() = nil, want listen error")
	}
}

func TestHTTPServerListenBusyAddress(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupying a port: %v", err)
	}
	defer occupied.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewHTTPServer(HTTPServerConfig{
		Address: occupied.Addr().String(),
		Handler: http.NotFoundHandler(),
		Logger:  logger,
	})
	if err := server.Listen(); err == nil {
		server.Close()
		t.Fatal("Listen() = nil, want address in use error")
	}
	if server.Addr() != nil {
		t.Errorf("Addr() = %v after failed Listen, want nil", server.Addr())
	}
}

func TestHTTPServerListenThenServe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: MetricsHandler(prometheus.NewRegistry(), nil),
		Logger:  logger,
	})

	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	address := server.Addr()
	if address == nil {
		t.Fatal("Addr() = nil after Listen")
	}
	if err := server.Listen(); err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	if server.Addr().String() != address.String() {
		t.Errorf("second Listen rebound to %s, want %s", server.Addr(), address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()
	<-server.Ready()

	response, err := http.Get("http://" + address.String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", response.StatusCode)
	}

	cancel()
	if err := <-serveErr; err != nil {
		t.Errorf("Serve: %v", err)
	}
}

func TestHTTPServerCloseReleasesListener(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.NotFoundHandler(),
		Logger:  logger,
	})
	if err := server.Close(); err != nil {
		t.Fatalf("Close before Listen: %v", err)
	}
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	address := server.Addr().String()
	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rebound, err := net.Listen("tcp", address)
	if err != nil {
		t.Fatalf("address %s still held after Close: %v", address, err)
	}
	rebound.Close()
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name   string
		config HTTPServerConfig
	}{
		{
			name:   "missing_address",
			config: HTTPServerConfig{Handler: handler, Logger: logger},
		},
		{
			name:   "missing_handler",
			config: HTTPServerConfig{Address: ":0", Logger: logger},
		},
		{
			name:   "missing_logger",
			config: HTTPServerConfig{Address: ":0", Handler: handler},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("NewHTTPServer did not panic")
				}
			}()
			NewHTTPServer(tt.config)
		})
	}
}

// --- MetricsHandler ---

func TestMetricsHandlerHealth(t *testing.T) {
	var healthErr error
	handler := MetricsHandler(prometheus.NewRegistry(), func() error { return healthErr })

	get := func(path string) *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		return recorder
	}

	if recorder := get("/healthz"); recorder.Code != http.StatusOK || strings.TrimSpace(recorder.Body.String()) != "ok" {
		t.Errorf("healthy /healthz = %d %q, want 200 ok", recorder.Code, recorder.Body.String())
	}

	healthErr = errors.New("shutting down")
	recorder := get("/healthz")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy /healthz status = %d, want 503", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "shutting down") {
		t.Errorf("unhealthy /healthz body = %q", recorder.Body.String())
	}

	if recorder := get("/other"); recorder.Code != http.StatusNotFound {
		t.Errorf("/other status = %d, want 404", recorder.Code)
	}
}
