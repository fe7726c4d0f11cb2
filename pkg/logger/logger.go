// Package logger is the process-wide structured logger. Call sites pass a
// message followed by key/value pairs.
package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is what libraries that take a logger value (fasthttp) receive.
type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Printf(format string, args ...any)
}

// ZapLogger is a sugared zap logger carrying fixed key/value pairs.
type ZapLogger struct {
	log *zap.SugaredLogger
}

var (
	level   = zap.NewAtomicLevel()
	current atomic.Pointer[zap.Logger]
)

// init builds the process logger. LOG_ENV=production switches to JSON output,
// LOG_LEVEL overrides the minimum level (debug, info, warn, error).
func init() {
	config := zap.NewDevelopmentConfig()
	if os.Getenv("LOG_ENV") == "production" {
		config = zap.NewProductionConfig()
	}
	level.SetLevel(config.Level.Level())
	config.Level = level
	_ = SetLevel(os.Getenv("LOG_LEVEL"))

	l, err := config.Build()
	if err != nil {
		panic(err)
	}
	Use(l)
}

// Use replaces the process logger. Tests install an observer core with it.
func Use(l *zap.Logger) {
	current.Store(l)
}

// SetLevel changes the minimum level at runtime. An empty string is a no-op.
func SetLevel(lvl string) error {
	if lvl == "" {
		return nil
	}
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

// With returns a logger that adds values to every entry, for work scoped to
// one transfer, effect or job.
func With(values ...any) *ZapLogger {
	return &ZapLogger{log: current.Load().Sugar().With(values...)}
}

// GetLogger returns the process logger as a value.
func GetLogger() *ZapLogger {
	return &ZapLogger{log: current.Load().Sugar()}
}

func (l *ZapLogger) Info(msg string, values ...any)  { l.log.Infow(msg, values...) }
func (l *ZapLogger) Warn(msg string, values ...any)  { l.log.Warnw(msg, values...) }
func (l *ZapLogger) Error(msg string, values ...any) { l.log.Errorw(msg, values...) }
func (l *ZapLogger) Debug(msg string, values ...any) { l.log.Debugw(msg, values...) }

func (l *ZapLogger) Printf(format string, args ...any) {
	l.log.Infof(format, args...)
}

func sugar() *zap.SugaredLogger {
	return current.Load().WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func Info(msg string, values ...any) {
	sugar().Infow(msg, values...)
}

func Warn(msg string, values ...any) {
	sugar().Warnw(msg, values...)
}

func Error(msg string, values ...any) {
	sugar().Errorw(msg, values...)
}

func Debug(msg string, values ...any) {
	sugar().Debugw(msg, values...)
}

func Panic(msg string, values ...any) {
	sugar().Panicw(msg, values...)
}

func Fatal(err error, values ...any) {
	sugar().Fatalw(err.Error(), values...)
}

// Sync flushes buffered entries; call it before the process exits.
func Sync() {
	_ = current.Load().Sync()
}
