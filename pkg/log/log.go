package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the verbosity of logging
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	// LevelOff discards everything
	LevelOff LogLevel = "off"
)

var (
	globalLogger *zap.SugaredLogger
	globalFile   *os.File
	globalMutex  sync.RWMutex
)

// Config holds logger configuration
type Config struct {
	Level LogLevel
	// File receives log output. Empty means stderr.
	File string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{Level: LevelInfo}
}

// ParseLevel maps a user supplied level name, reporting false for unknown names
func ParseLevel(raw string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "off", "none", "disabled":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		sink = zapcore.AddSync(f)
	}

	logger := newLogger(cfg.Level, sink, cfg.File == "")

	globalMutex.Lock()
	defer globalMutex.Unlock()
	closeLocked()
	globalLogger = logger
	globalFile = file
	return nil
}

// mapLevelToZapLevel maps our log level to zap level; false means logging is off
func mapLevelToZapLevel(level LogLevel) (zapcore.Level, bool) {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel, true
	case LevelInfo:
		return zapcore.InfoLevel, true
	case LevelWarn:
		return zapcore.WarnLevel, true
	case LevelError:
		return zapcore.ErrorLevel, true
	case LevelOff:
		return zapcore.FatalLevel, false
	default:
		return zapcore.InfoLevel, true
	}
}

func buildEncoderConfig(color bool) zapcore.EncoderConfig {
	encodeLevel := zapcore.CapitalLevelEncoder
	if color {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    encodeLevel,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func newLogger(level LogLevel, sink zapcore.WriteSyncer, color bool) *zap.SugaredLogger {
	zapLevel, enabled := mapLevelToZapLevel(level)
	if !enabled {
		return zap.NewNop().Sugar()
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(buildEncoderConfig(color)), sink, zapLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Get returns the global logger.
// Before Init it returns a stderr logger that only reports warnings and errors.
func Get() *zap.SugaredLogger {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()
	if logger != nil {
		return logger
	}

	fallback := newLogger(LevelWarn, zapcore.AddSync(os.Stderr), false)

	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalLogger != nil {
		return globalLogger
	}
	globalLogger = fallback
	return globalLogger
}

func Debug(msg string, args ...interface{}) { Get().Debugw(msg, args...) }

func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }

func Info(msg string, args ...interface{}) { Get().Infow(msg, args...) }

func Infof(template string, args ...interface{}) { Get().Infof(template, args...) }

func Warn(msg string, args ...interface{}) { Get().Warnw(msg, args...) }

func Warnf(template string, args ...interface{}) { Get().Warnf(template, args...) }

func Error(msg string, args ...interface{}) { Get().Errorw(msg, args...) }

func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }

// With returns a logger with additional fields
func With(args ...interface{}) *zap.SugaredLogger {
	return Get().With(args...)
}

// Sync flushes any buffered log entries
func Sync() error {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Reset drops the global logger and closes its file (mainly for testing)
func Reset() {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	closeLocked()
}

func closeLocked() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	if globalFile != nil {
		_ = globalFile.Close()
	}
	globalLogger = nil
	globalFile = nil
}
