// Package logger wraps charmbracelet/log behind a small Logger interface so
// every component logs through one seam instead of fmt.Println/log.
package logger

import (
	"context"
	"io"
	"os"
	"testing"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the structured logging surface every component depends on.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// LogLevel is a wire-friendly log level name.
type LogLevel string

const (
	DebugLevel    LogLevel = "debug"
	InfoLevel     LogLevel = "info"
	WarnLevel     LogLevel = "warn"
	ErrorLevel    LogLevel = "error"
	DisabledLevel LogLevel = "disabled"
)

// ToCharmlogLevel maps a LogLevel onto charmbracelet/log's level type,
// defaulting unknown values to InfoLevel.
func (l LogLevel) ToCharmlogLevel() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case InfoLevel:
		return charmlog.InfoLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	case DisabledLevel:
		return charmlog.Level(1000)
	default:
		return charmlog.InfoLevel
	}
}

// Config controls how NewLogger renders output.
type Config struct {
	Level      LogLevel
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string
}

// DefaultConfig is what a production process uses absent overrides.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Output:     os.Stdout,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

// TestConfig silences output; used by component tests that construct a
// Logger but don't want it polluting test output.
func TestConfig() *Config {
	return &Config{
		Level:      DisabledLevel,
		Output:     io.Discard,
		JSON:       false,
		AddSource:  false,
		TimeFormat: "15:04:05",
	}
}

// IsTestEnvironment reports whether the process is running under `go test`.
func IsTestEnvironment() bool {
	return testing.Testing()
}

type charmLogger struct {
	l *charmlog.Logger
}

// NewLogger builds a Logger from config, falling back to DefaultConfig (or
// TestConfig under `go test`) when config is nil.
func NewLogger(config *Config) Logger {
	if config == nil {
		if IsTestEnvironment() {
			config = TestConfig()
		} else {
			config = DefaultConfig()
		}
	}
	opts := charmlog.Options{
		Level:           config.Level.ToCharmlogLevel(),
		ReportTimestamp: true,
		TimeFormat:      config.TimeFormat,
		ReportCaller:    config.AddSource,
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	l := charmlog.NewWithOptions(out, opts)
	if config.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return &charmLogger{l: l}
}

func (c *charmLogger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...any)  { c.l.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...any)  { c.l.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }

func (c *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{l: c.l.With(keyvals...)}
}

type ctxKey string

// LoggerCtxKey is the context key under which a Logger is stored.
const LoggerCtxKey ctxKey = "logger"

var defaultLogger = NewLogger(nil)

// ContextWithLogger returns a child context carrying l.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, l)
}

// FromContext returns the Logger stored in ctx, or a package default if
// none is present (or the stored value is not a Logger / is nil).
func FromContext(ctx context.Context) Logger {
	if v := ctx.Value(LoggerCtxKey); v != nil {
		if l, ok := v.(Logger); ok && l != nil {
			return l
		}
	}
	return defaultLogger
}
