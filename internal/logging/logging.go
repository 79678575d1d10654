// Package logging provides structured logging capabilities using slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// global logger instances, initialized in Init()
var (
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	loggerMu            sync.RWMutex
)

// currentLogLevel stores the dynamic level for all loggers
var currentLogLevel = new(slog.LevelVar)
var initOnce sync.Once
var initialized bool

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// defaultReplaceAttr provides common attribute formatting for all loggers.
// It formats time to second precision, customizes level names, and truncates
// float64 values to 2 decimal places.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			levelLabel, exists := levelNames[level]
			if !exists {
				levelLabel = level.String()
			}
			a.Value = slog.StringValue(levelLabel)
		} else {
			a.Value = slog.StringValue(fmt.Sprintf("%v", a.Value.Any()))
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncatedVal := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncatedVal)
	}
	return a
}

// Init initializes the global loggers: a structured (JSON) logger writing to
// logs/auralis.log with rotation, and a human-readable (Text) logger on stdout.
func Init() {
	initOnce.Do(func() {
		currentLogLevel.Set(slog.LevelInfo)

		var structuredOutput io.Writer = &lumberjack.Logger{
			Filename:   filepath.Join("logs", "auralis.log"),
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}

		structuredHandler := slog.NewJSONHandler(structuredOutput, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		humanReadableHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(structuredHandler)
		humanReadableLogger = slog.New(humanReadableHandler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
		initialized = true
	})
}

// IsInitialized returns true if the logging system has been initialized
func IsInitialized() bool {
	return initialized
}

// SetLevel changes the logging level for all initialized loggers.
func SetLevel(level slog.Level) {
	currentLogLevel.Set(level)
}

// SetOutput redirects logger output, e.g. for tests. Both writers must be
// non-nil.
func SetOutput(structuredOutput, humanReadableOutput io.Writer) error {
	if structuredOutput == nil {
		return fmt.Errorf("structuredOutput writer cannot be nil")
	}
	if humanReadableOutput == nil {
		return fmt.Errorf("humanReadableOutput writer cannot be nil")
	}

	structuredHandler := slog.NewJSONHandler(structuredOutput, &slog.HandlerOptions{
		Level:       currentLogLevel,
		ReplaceAttr: defaultReplaceAttr,
	})
	humanReadableHandler := slog.NewTextHandler(humanReadableOutput, &slog.HandlerOptions{
		Level:       currentLogLevel,
		ReplaceAttr: defaultReplaceAttr,
	})

	loggerMu.Lock()
	structuredLogger = slog.New(structuredHandler)
	humanReadableLogger = slog.New(humanReadableHandler)
	loggerMu.Unlock()

	slog.SetDefault(structuredLogger)
	return nil
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable (Text) logger.
func HumanReadable() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// It uses the global structured logger as the base. Falls back to the default
// slog logger when Init() has not been called, so package-level loggers are
// always usable in tests.
func ForService(serviceName string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()

	if logger == nil {
		return slog.Default().With("service", serviceName)
	}
	return logger.With("service", serviceName)
}

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}
