// Package logger provides the process-wide logger for the sync server.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

// Initialize configures the global logger. Safe to call more than once;
// the last call wins. When debug is true, log output is human-readable
// console encoding at debug level, otherwise JSON at info level.
func Initialize(debug bool) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap's stock configs cannot fail to build; fall back just in case.
		l = zap.NewNop()
	}

	mu.Lock()
	log = l.Sugar()
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		Initialize(false)
		mu.RLock()
		l = log
		mu.RUnlock()
	}
	return l
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { get().Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { get().Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { get().Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) { get().Fatalf(format, args...) }

// Info logs a message at info level.
func Info(args ...any) { get().Info(args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { get().Warn(args...) }

// Error logs a message at error level.
func Error(args ...any) { get().Error(args...) }

// Sync flushes any buffered log entries.
func Sync() error {
	return get().Sync()
}
