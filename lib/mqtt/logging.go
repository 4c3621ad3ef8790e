// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RouteLibraryLogs sends Paho's internal ERROR, CRITICAL, and WARN
// output to logger. Paho's loggers are package globals, so this
// affects every client in the process. DEBUG output stays discarded.
func RouteLibraryLogs(logger *slog.Logger) {
	logger = logger.With("component", "paho")
	paho.CRITICAL = slogPrinter{logger: logger, level: slog.LevelError}
	paho.ERROR = slogPrinter{logger: logger, level: slog.LevelError}
	paho.WARN = slogPrinter{logger: logger, level: slog.LevelWarn}
}

// slogPrinter implements Paho's Logger interface on top of slog.
type slogPrinter struct {
	logger *slog.Logger
	level  slog.Level
}

func (p slogPrinter) Println(v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p slogPrinter) Printf(format string, v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (p slogPrinter) emit(message string) {
	p.logger.Log(context.Background(), p.level, message)
}
