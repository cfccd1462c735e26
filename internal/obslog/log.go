// Package obslog provides the package-level structured logger used
// across the chunk storage subsystem.
package obslog

import (
	"go.uber.org/zap"
)

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARNING
	ERROR
	FATAL
)

var logLevel Level

func SetLevel(level Level) {
	logLevel = level
}

func Debug(format string, args ...interface{}) {
	if logLevel <= DEBUG {
		zap.S().Debugf(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if logLevel <= INFO {
		zap.S().Infof(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if logLevel <= WARNING {
		zap.S().Warnf(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if logLevel <= ERROR {
		zap.S().Errorf(format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	zap.S().Fatalf(format, args...)
}

// Sync flushes any buffered log entries; callers should invoke this on
// graceful shutdown.
func Sync() error {
	return zap.L().Sync()
}

// With returns a sugared logger with the given structured fields attached,
// for call sites that want context (chunk_number, path, data_position)
// attached to every subsequent line instead of formatted into the message.
func With(args ...interface{}) *zap.SugaredLogger {
	return zap.S().With(args...)
}
