// Package obslog builds the process-wide zap logger used by Collaboration Scout.
//
// No logger is ever kept in a package-global variable here: New returns a
// *zap.Logger that callers thread explicitly through the orchestrator and
// CLI layer.
package obslog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels accepted by CS_LOG_LEVEL, closed set per spec.md §6.
var levels = map[string]zapcore.Level{
	"trace": zapcore.DebugLevel, // zap has no trace level; trace maps to debug
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

// New builds a production-style JSON logger at the given level string.
// An unrecognized level falls back to info.
func New(level string) (*zap.Logger, error) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewNop returns a logger that discards everything, for doctor/dry-run paths
// that must not create log side effects.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
