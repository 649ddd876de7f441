package logger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iTwin/presentation-hierarchies/internal/build"
)

// Logging categories used across the hierarchies packages. Categories are hierarchical:
// a level configured for "Hierarchies" applies to "Hierarchies.Provider" unless the
// latter has its own setting.
const (
	CategoryRoot        = "Hierarchies"
	CategoryProvider    = CategoryRoot + ".Provider"
	CategoryQueries     = CategoryRoot + ".Queries"
	CategoryPerformance = CategoryRoot + ".Performance"
	CategoryGrouping    = CategoryRoot + ".Grouping"
)

// Severity of a categorized log message, ordered Error > Warning > Info > Trace.
type Severity int8

const (
	SeverityTrace Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "trace"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// ParseSeverity parses one of "trace", "info", "warning" or "error".
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "trace", "debug":
		return SeverityTrace, nil
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return 0, fmt.Errorf("unknown severity: %s", s)
	}
}

func (s Severity) zapLevel() zapcore.Level {
	switch s {
	case SeverityTrace:
		return zapcore.DebugLevel
	case SeverityInfo:
		return zapcore.InfoLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

type Logger interface {
	// These are ops that call directly to the actual zap implementation
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)

	// These are the equivalent logger function but with context provided
	DebugWithContext(context.Context, string, ...zap.Field)
	InfoWithContext(context.Context, string, ...zap.Field)
	WarnWithContext(context.Context, string, ...zap.Field)
	ErrorWithContext(context.Context, string, ...zap.Field)

	// Enabled reports whether a message of the given severity would be written for category.
	Enabled(category string, severity Severity) bool

	// Log writes the message produced by msg under category. msg is only invoked when
	// the category and severity are enabled.
	Log(category string, severity Severity, msg func() string, fields ...zap.Field)
}

// ZapLogger is an implementation of Logger that uses the uber/zap logger underneath.
// It provides additional methods such as ones that logs based on context.
type ZapLogger struct {
	*zap.Logger

	// categoryLevels holds per-category minimum severities. Not mutated after construction.
	categoryLevels map[string]Severity
}

var _ Logger = (*ZapLogger)(nil)

// Option configures a ZapLogger.
type Option func(*ZapLogger)

// WithCategoryLevel sets the minimum severity written for category and its sub-categories.
func WithCategoryLevel(category string, severity Severity) Option {
	return func(l *ZapLogger) {
		if l.categoryLevels == nil {
			l.categoryLevels = map[string]Severity{}
		}
		l.categoryLevels[category] = severity
	}
}

func (l *ZapLogger) With(fields ...zap.Field) {
	l.Logger = l.Logger.With(fields...)
}

func (l *ZapLogger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

func (l *ZapLogger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

func (l *ZapLogger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

func (l *ZapLogger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

func (l *ZapLogger) DebugWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

func (l *ZapLogger) InfoWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

func (l *ZapLogger) WarnWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

func (l *ZapLogger) ErrorWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

// categoryLevel returns the severity configured for the closest ancestor of category.
func (l *ZapLogger) categoryLevel(category string) (Severity, bool) {
	for c := category; c != ""; {
		if s, ok := l.categoryLevels[c]; ok {
			return s, true
		}
		i := strings.LastIndexByte(c, '.')
		if i < 0 {
			break
		}
		c = c[:i]
	}
	return 0, false
}

func (l *ZapLogger) Enabled(category string, severity Severity) bool {
	if min, ok := l.categoryLevel(category); ok && severity < min {
		return false
	}
	return l.Logger.Core().Enabled(severity.zapLevel())
}

func (l *ZapLogger) Log(category string, severity Severity, msg func() string, fields ...zap.Field) {
	if !l.Enabled(category, severity) {
		return
	}
	if ce := l.Logger.Named(category).Check(severity.zapLevel(), msg()); ce != nil {
		ce.Write(fields...)
	}
}

// NewNoopLogger provides noop logger that satisfies the logger interface.
func NewNoopLogger() *ZapLogger {
	return &ZapLogger{
		Logger: zap.NewNop(),
	}
}

func NewLogger(logFormat, logLevel string, opts ...Option) (*ZapLogger, error) {
	if logLevel == "none" {
		return NewNoopLogger(), nil
	}

	var level zapcore.Level
	switch logLevel {
	case "debug", "trace":
		level = zap.DebugLevel
	case "info":
		level = zap.InfoLevel
	case "warn", "warning":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level: %s", logLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.CallerKey = "" // remove the "caller" field
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if logFormat == "text" {
		cfg.Encoding = "console"
		cfg.DisableCaller = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	if logFormat == "json" {
		log = log.With(zap.String("build.version", build.Version), zap.String("build.commit", build.Commit))
	}

	l := &ZapLogger{Logger: log}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func MustNewLogger(logFormat, logLevel string, opts ...Option) *ZapLogger {
	logger, err := NewLogger(logFormat, logLevel, opts...)
	if err != nil {
		panic(err)
	}

	return logger
}
