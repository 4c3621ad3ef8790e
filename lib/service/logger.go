// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Log output formats accepted by NewLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatAuto = "auto"
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	// Level is the minimum level emitted. Defaults to Info.
	Level slog.Leveler

	// Format is json, text, or auto. Empty means json. Auto selects
	// text when Output is a terminal and JSON otherwise.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger creates the process logger and installs it as the slog
// default so library code using slog.Info and friends shares the same
// handler.
func NewLogger(config LoggerConfig) (*slog.Logger, error) {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	level := config.Level
	if level == nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}

	format := config.Format
	if format == FormatAuto {
		format = FormatJSON
		if isTerminal(output) {
			format = FormatText
		}
	}

	var handler slog.Handler
	switch format {
	case "", FormatJSON:
		handler = slog.NewJSONHandler(output, options)
	case FormatText:
		handler = slog.NewTextHandler(output, options)
	default:
		return nil, fmt.Errorf("unknown log format %q (want json, text, or auto)", config.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// isTerminal reports whether output is a file attached to a terminal.
func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
