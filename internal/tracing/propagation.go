package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext enriches a logger with whatever tracing fields the
// context carries.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	if traceID := GetTraceID(ctx); traceID != "" {
		baseLogger = baseLogger.With().Str("trace_id", traceID).Logger()
	}
	if sessionKey := GetSessionKey(ctx); sessionKey != "" {
		baseLogger = baseLogger.With().Str("session_key", sessionKey).Logger()
	}
	return baseLogger
}
