// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mqtt2loki/lib/batcher"
	"github.com/bureau-foundation/mqtt2loki/lib/clock"
	"github.com/bureau-foundation/mqtt2loki/lib/config"
	"github.com/bureau-foundation/mqtt2loki/lib/ingest"
	"github.com/bureau-foundation/mqtt2loki/lib/loki"
	"github.com/bureau-foundation/mqtt2loki/lib/metrics"
	"github.com/bureau-foundation/mqtt2loki/lib/mqtt"
	"github.com/bureau-foundation/mqtt2loki/lib/service"
	"github.com/bureau-foundation/mqtt2loki/lib/shutdown"
	"github.com/bureau-foundation/mqtt2loki/lib/topic"
	"github.com/bureau-foundation/mqtt2loki/lib/version"
)

// readyCheckTimeout bounds the startup Loki readiness check.
const readyCheckTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	logLevel    string
	check       bool
	showVersion bool
	showHelp    bool
}

func parseArgs(args []string, stderr io.Writer) (options, *pflag.FlagSet, error) {
	var opts options

	defaultPath := os.Getenv(config.EnvironmentVariable)
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}

	flagSet := pflag.NewFlagSet("mqtt2loki", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", defaultPath,
		"path to the YAML or JSONC config file (env "+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.logLevel, "log-level", "",
		"override system.log_level (debug, info, warn, error)")
	flagSet.BoolVar(&opts.check, "check", false,
		"validate the config, print the device table, and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.showHelp, "help", "h", false, "show help")
	flagSet.Usage = func() {}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.showHelp = true
			return opts, flagSet, nil
		}
		return opts, flagSet, err
	}
	if flagSet.NArg() > 0 {
		return opts, flagSet, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return opts, flagSet, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `mqtt2loki: forward MQTT device output to Grafana Loki.

Subscribes to every topic listed under "devices" in the config file and
pushes each message to Loki as one log line labelled with the device's
label. Lines are batched by count and by time.

Usage:
  mqtt2loki [flags]

Flags:
%s`, flagSet.FlagUsages())
}

// loadConfig reads and validates the config, applying flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.System.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s:\n%w", opts.configPath, err)
	}
	return cfg, nil
}

// printDevices writes the device table shown by --check.
func printDevices(w io.Writer, cfg *config.Config) error {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "LABEL\tTOPIC")
	for _, device := range cfg.Devices {
		fmt.Fprintf(table, "%s\t%s\n", device.Label, device.Topic)
	}
	if err := table.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d devices, batch size %d, batch timeout %s, queue capacity %d\n",
		len(cfg.Devices), cfg.Loki.BatchSize, cfg.Loki.BatchTimeout, ingest.QueueCapacity(len(cfg.Devices)))
	return nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, flagSet, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printHelp(stderr, flagSet)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "mqtt2loki %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.check {
		return printDevices(stdout, cfg)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger, err := service.NewLogger(service.LoggerConfig{
		Level:  level,
		Format: cfg.System.LogFormat,
		Output: stderr,
	})
	if err != nil {
		return err
	}
	logger.Info("mqtt2loki starting", version.LogAttrs()...)
	logger.Debug("configuration", "path", opts.configPath, "config", cfg)
	mqtt.RouteLibraryLogs(logger)

	coordinator := shutdown.New(context.Background(), logger)
	coordinator.NotifySignals(syscall.SIGINT, syscall.SIGTERM)

	return serve(coordinator, cfg, logger)
}

// serve builds the pipeline and runs it until shutdown.
func serve(coordinator *shutdown.Coordinator, cfg *config.Config, logger *slog.Logger) error {
	ctx := coordinator.Context()
	realClock := clock.Real()

	router, err := topic.New(cfg.DeviceList())
	if err != nil {
		return fmt.Errorf("building topic router: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.New(registry)

	lokiClient, err := loki.New(loki.Config{
		BaseURL:     cfg.Loki.BaseURL,
		Username:    cfg.Loki.Username,
		Password:    cfg.Loki.Password,
		Timeout:     cfg.Loki.Timeout.Std(),
		Compression: cfg.Loki.Compression,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	checkLokiReady(ctx, lokiClient, logger)

	queue := make(chan ingest.Message, ingest.QueueCapacity(router.Len()))

	mqttClient, err := mqtt.New(mqtt.Config{
		Address:   cfg.MQTT.Address,
		Port:      cfg.MQTT.Port,
		UseTLS:    cfg.MQTT.UseTLS,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		ClientID:  cfg.MQTT.ClientID,
		KeepAlive: cfg.MQTT.KeepAlive.Std(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	dispatcher, err := batcher.New(batcher.Config{
		Size:     cfg.Loki.BatchSize,
		Interval: cfg.Loki.BatchTimeout.Std(),
		Retry:    cfg.Loki.Retry.Policy(),
		Sink:     lokiClient,
		Clock:    realClock,
		Logger:   logger,
		Metrics:  pipelineMetrics,
	})
	if err != nil {
		return err
	}

	// The metrics listener binds before ingestion starts so an unusable
	// address is a startup failure.
	var metricsServer *service.HTTPServer
	if cfg.Metrics.Address != "" {
		metricsServer = service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Metrics.Address,
			Handler: service.MetricsHandler(registry, func() error {
				if ctx.Err() != nil {
					return errors.New("shutting down")
				}
				return nil
			}),
			Logger: logger,
		})
		if err := metricsServer.Listen(); err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
	}

	ingestor := ingest.New(ingest.Config{
		Router:     router,
		Subscriber: mqttClient,
		Queue:      queue,
		Clock:      realClock,
		Logger:     logger,
		Metrics:    pipelineMetrics,
	})
	subscribed, err := ingestor.Start(ctx)
	if err != nil {
		if metricsServer != nil {
			metricsServer.Close()
		}
		if ctx.Err() != nil {
			logger.Info("interrupted during startup", "reason", coordinator.Reason())
			return nil
		}
		return fmt.Errorf("starting ingestion: %w", err)
	}

	coordinator.Go("ingest", ingestor.Run)
	coordinator.Go("dispatcher", func(ctx context.Context) error {
		return dispatcher.Run(ctx, queue)
	})

	if metricsServer != nil {
		coordinator.Go("metrics", metricsServer.Serve)
	}

	logger.Info("mqtt2loki running",
		"devices", router.Len(),
		"subscribed", len(subscribed),
		"queue_capacity", cap(queue),
		"batch_size", cfg.Loki.BatchSize,
		"batch_timeout", cfg.Loki.BatchTimeout.String(),
		"loki", cfg.Loki.BaseURL,
	)

	err = coordinator.Wait()
	logger.Info("goodbye", "reason", coordinator.Reason())
	return err
}

// checkLokiReady logs whether Loki reports ready. It never fails startup:
// pushes are retried per batch and Loki may come up later.
func checkLokiReady(ctx context.Context, client *loki.Client, logger *slog.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()

	ready, err := client.Ready(checkCtx)
	switch {
	case err != nil:
		logger.Warn("loki readiness check failed", "error", err)
	case !ready:
		logger.Warn("loki is not ready yet")
	default:
		logger.Info("loki is ready")
	}
}
