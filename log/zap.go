package log

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment controls the baseline zap profile.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLocal       Environment = "local"
)

// ZapConfig contains the logger initialization inputs.
type ZapConfig struct {
	Environment Environment
	Level       string
}

func (c ZapConfig) validate() error {
	switch c.Environment {
	case EnvironmentProduction, EnvironmentDevelopment, EnvironmentLocal:
		return nil
	default:
		return fmt.Errorf("invalid environment %q", c.Environment)
	}
}

// ZapLogger adapts a *zap.Logger to the Logger interface.
type ZapLogger struct {
	logger *zap.Logger
	level  Level
}

// NewZap creates a structured zap-backed logger.
func NewZap(cfg ZapConfig) (*ZapLogger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid zap config: %w", err)
	}

	baseConfig := buildConfigByEnvironment(cfg.Environment)

	level := LevelInfo

	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}

		level = parsed
	}

	baseConfig.Level = zap.NewAtomicLevelAt(zapLevel(level))
	baseConfig.DisableStacktrace = true

	built, err := baseConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &ZapLogger{logger: built, level: level}, nil
}

func buildConfigByEnvironment(environment Environment) zap.Config {
	if environment == EnvironmentLocal {
		return zap.NewDevelopmentConfig()
	}

	return zap.NewProductionConfig()
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Log emits a single log event at the given level.
func (l *ZapLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	if l == nil || l.logger == nil {
		return
	}

	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		zapFields = append(zapFields, zapField(field))
	}

	switch level {
	case LevelDebug:
		l.logger.Debug(msg, zapFields...)
	case LevelInfo:
		l.logger.Info(msg, zapFields...)
	case LevelWarn:
		l.logger.Warn(msg, zapFields...)
	case LevelError:
		l.logger.Error(msg, zapFields...)
	}
}

func zapField(field Field) zap.Field {
	if err, ok := field.Value.(error); ok && field.Key == "error" {
		return zap.Error(err)
	}

	return zap.Any(field.Key, field.Value)
}

// With returns a child logger with the given fields bound.
//
//nolint:ireturn
func (l *ZapLogger) With(fields ...Field) Logger {
	if l == nil || l.logger == nil {
		return NewNop()
	}

	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		zapFields = append(zapFields, zapField(field))
	}

	return &ZapLogger{logger: l.logger.With(zapFields...), level: l.level}
}

// Enabled reports whether the given level would be emitted.
func (l *ZapLogger) Enabled(level Level) bool {
	if l == nil || l.logger == nil {
		return false
	}

	return l.level >= level
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync(_ context.Context) error {
	if l == nil || l.logger == nil {
		return nil
	}

	return l.logger.Sync()
}
