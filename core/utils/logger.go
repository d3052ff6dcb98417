package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the printf-style logger shared by stores, services and handlers.
// A nil *Logger is valid and discards everything.
type Logger struct {
	s *zap.SugaredLogger
}

func NewLoggerWithConfig(level, format string) (*Logger, error) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		cfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("log format %q not supported", format)
	}
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{s: base.Sugar()}, nil
}

func NewNopLogger() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	if l == nil || l.s == nil {
		return l
	}
	return &Logger{s: l.s.With(keysAndValues...)}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Debugf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Errorf(format, args...)
}

func (l *Logger) Sync() error {
	if l == nil || l.s == nil {
		return nil
	}
	return l.s.Sync()
}
