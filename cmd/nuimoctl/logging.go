package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// newLogger creates a logger for the given level name. An empty name falls
// back to the config default; command output stays readable by keeping the
// logger quiet unless asked otherwise.
func newLogger(level string) (*logrus.Logger, error) {
	logLevel := logrus.WarnLevel
	switch level {
	case "":
	case "debug":
		logLevel = logrus.DebugLevel
	case "info":
		logLevel = logrus.InfoLevel
	case "warn":
		logLevel = logrus.WarnLevel
	case "error":
		logLevel = logrus.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
