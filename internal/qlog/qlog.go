// Package qlog provides structured logging for qcache: leveled output
// with per-subsystem trace toggles, in the same shape the teacher
// codebase's logger package offers, backed by go.uber.org/zap instead of
// a bare stdlib logger.
//
// Log levels follow a hierarchical system where higher numeric values
// indicate more severe messages; when a level is set, only messages at
// that level or higher are emitted.
package qlog

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors zapcore.Level but is exported under qcache's own name so
// callers don't need to import zap directly.
type Level int32

const (
	TRACE Level = iota - 1 // most verbose: coalescer joins, background refresh results
	DEBUG
	INFO
	WARN
	ERROR
)

func (l Level) zap() zapcore.Level {
	switch l {
	case TRACE, DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	currentLevel   atomic.Int32
	traceMu        sync.RWMutex
	traceSubsystem = make(map[string]bool)

	base   *zap.Logger
	sugar  *zap.SugaredLogger
	baseMu sync.RWMutex
)

func init() {
	currentLevel.Store(int32(INFO))
	// Level filtering happens in this package, so the zap core itself
	// accepts everything down to debug.
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(TRACE.zap())
	base, _ = cfg.Build()
	sugar = base.Sugar()
}

// SetOutput swaps the underlying zap logger, letting callers (tests,
// cmd/ mains) redirect output or switch to a development encoder.
func SetOutput(l *zap.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = l
	sugar = l.Sugar()
}

// SetLevel sets the minimum emitted level.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// EnableTrace turns on TRACE-level output for the named subsystems
// (e.g. "coalescer", "refresh").
func EnableTrace(subsystems ...string) {
	traceMu.Lock()
	defer traceMu.Unlock()
	for _, s := range subsystems {
		traceSubsystem[strings.ToLower(s)] = true
	}
}

// DisableTrace turns off TRACE-level output for the named subsystems.
func DisableTrace(subsystems ...string) {
	traceMu.Lock()
	defer traceMu.Unlock()
	for _, s := range subsystems {
		delete(traceSubsystem, strings.ToLower(s))
	}
}

func traceEnabled(subsystem string) bool {
	traceMu.RLock()
	defer traceMu.RUnlock()
	return traceSubsystem[strings.ToLower(subsystem)]
}

func enabled(l Level) bool {
	return int32(l) >= currentLevel.Load()
}

func logger() *zap.SugaredLogger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return sugar
}

// Trace logs at TRACE level for subsystems enabled via EnableTrace,
// independent of the global level, so verbose per-component logging can
// be switched on without lowering the global level.
func Trace(subsystem, format string, args ...any) {
	if !traceEnabled(subsystem) {
		return
	}
	logger().Debugf("[trace:"+subsystem+"] "+format, args...)
}

// Debug logs at DEBUG level.
func Debug(format string, args ...any) {
	if !enabled(DEBUG) {
		return
	}
	logger().Debugf(format, args...)
}

// Info logs at INFO level.
func Info(format string, args ...any) {
	if !enabled(INFO) {
		return
	}
	logger().Infof(format, args...)
}

// Warn logs at WARN level.
func Warn(format string, args ...any) {
	if !enabled(WARN) {
		return
	}
	logger().Warnf(format, args...)
}

// Error logs at ERROR level.
func Error(format string, args ...any) {
	if !enabled(ERROR) {
		return
	}
	logger().Errorf(format, args...)
}

// With returns a child logger carrying structured key/value fields,
// for call sites that want the underlying zap logger directly rather
// than the package-level printf helpers.
func With(kv ...any) *zap.SugaredLogger {
	return logger().With(kv...)
}
