package main

import (
	"fmt"
	"os"

	"github.com/luxsim/helio/pkg/logger"
)

// Environment variable fallbacks for logger settings. CLI flags take
// precedence when set.
const (
	envLogLevel  = "LOG_LEVEL"
	envLogFile   = "LOG_FILE"
	envLogFormat = "LOG_FORMAT"
)

// initLoggerFromCLI configures the global logger from CLI flags with
// environment variable fallbacks. Returns a cleanup function that must be
// called before exit when logging to a file.
func initLoggerFromCLI(levelFlag, fileFlag, formatFlag string) (func(), error) {
	level := levelFlag
	if level == "" {
		level = os.Getenv(envLogLevel)
	}
	if level == "" {
		level = "info"
	}

	logFile := fileFlag
	if logFile == "" {
		logFile = os.Getenv(envLogFile)
	}

	format := formatFlag
	if format == "" {
		format = os.Getenv(envLogFormat)
	}
	if format == "" {
		format = "simple"
	}

	parsedLevel, err := logger.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		f, closeFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = closeFn
	}

	logger.Init(parsedLevel, output, format)
	return cleanup, nil
}
