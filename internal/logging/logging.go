// Package logging constructs the zap loggers used throughout the tunnel,
// matching original_source's logging_utils.get_logger(...) + extra={...}
// structured-field convention, now expressed as zap.Field helpers instead
// of a dict (spec section ambient-stack requirement: structured logging
// carried regardless of the spec's feature-level Non-goals).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Role identifies which endpoint a logger belongs to, mirroring the
// original's "role": "drone"|"gcs" extra field.
type Role string

const (
	RoleDrone Role = "drone"
	RoleGCS   Role = "gcs"
)

// New builds a production-profile zap.Logger at the given level, tagged
// with the endpoint's role. devMode switches to a human-readable console
// encoder instead of JSON, matching how the original distinguishes
// ENV=dev from production logging.
func New(role Role, level zapcore.Level, devMode bool) (*zap.Logger, error) {
	var cfg zap.Config
	if devMode {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("role", string(role))), nil
}

// SessionFields returns the structured fields attached to every log line
// tied to one handshake session, mirroring the original's
// extra={"session_id": ..., "suite_id": ...} pattern.
func SessionFields(sessionID string, suiteID string) []zap.Field {
	return []zap.Field{
		zap.String("session_id", sessionID),
		zap.String("suite_id", suiteID),
	}
}
