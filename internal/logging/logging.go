// Package logging wraps zap + lumberjack behind the callcontrol.Logger
// contract (Info/Warn/Error/Debug), rotating to a file and mapping the
// configured severity (spec §6: INFO for state transitions, WARNING for
// recoverable dirty paths, ERROR for control parse failures, DEBUG for
// per-message traces) to a zap level enabler.
package logging

import (
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var levelMap = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// Config controls where logs land and at what minimum severity.
type Config struct {
	Path  string // lumberjack-rotated log file path
	Level string // one of "debug", "info", "warning", "error"
}

// Logger adapts *zap.Logger to the narrow Info/Warn/Error/Debug contract
// callcontrol.Session and the pipelines depend on.
type Logger struct {
	z *zap.Logger
}

// New builds a rotating file logger at cfg.Level severity.
func New(cfg Config) *Logger {
	level, ok := levelMap[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	hook := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    64, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(hook),
		zap.NewAtomicLevelAt(level),
	)

	return &Logger{z: zap.New(core)}
}

func fields(kv []any) []zap.Field {
	if len(kv)%2 != 0 {
		kv = append(kv, "<missing>")
	}
	fs := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = "arg"
		}
		fs = append(fs, zap.Any(key, kv[i+1]))
	}
	return fs
}

func (l *Logger) Info(msg string, kv ...any)  { l.z.Info(msg, fields(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.z.Warn(msg, fields(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.z.Error(msg, fields(kv)...) }
func (l *Logger) Debug(msg string, kv ...any) { l.z.Debug(msg, fields(kv)...) }

// Sync flushes buffered log entries. Call before process exit.
func (l *Logger) Sync() error { return l.z.Sync() }
