// Package logger provides structured logging for collabkit.
//
// It wraps Go's standard log/slog with a package-level default logger
// configurable via the LOG_LEVEL environment variable, plus *Context
// helpers that pass a context through to the slog handler. The default
// text handler does not add any fields from that context.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// maxPayloadPreview caps how much of an operation's raw data RedactPayload
// will echo back. Document content can run to the configured
// MaxOperationSize (default 1MiB); a log line has no business carrying that.
const maxPayloadPreview = 64

// DefaultLogger is the global structured logger instance. Logging through
// it is safe for concurrent use; SetLevel/SetVerbose replace it with a
// plain (non-atomic) assignment.
var DefaultLogger *slog.Logger

func init() {
	DefaultLogger = slog.New(newHandler(parseEnvLevel()))
}

func parseEnvLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(level slog.Level) slog.Handler {
	return slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
}

// SetLevel replaces DefaultLogger with one at the given level.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(newHandler(level))
}

// SetVerbose is a convenience wrapper for CLI verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Info logs at info level with structured key/value attributes.
func Info(msg string, args ...any) { DefaultLogger.Info(msg, args...) }

// InfoContext logs at info level with a context for trace correlation.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }

// DebugContext logs at debug level with a context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs at warn level. Used for recoverable conditions such as a
// failed (non-fatal) snapshot persist.
func Warn(msg string, args ...any) { DefaultLogger.Warn(msg, args...) }

// WarnContext logs at warn level with a context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

// ErrorContext logs at error level with a context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// With returns a logger scoped with the given key/value attributes, for
// callers that want to carry connection/document identity across a
// sequence of log calls instead of repeating it each time.
func With(args ...any) *slog.Logger {
	return DefaultLogger.With(args...)
}

// RedactPayload renders an operation's raw data as a short, loggable
// preview instead of the full value: a byte count plus a bounded prefix.
// Operation payloads are arbitrary content-type data (document bytes,
// JSON patches) that may be large or carry user content that doesn't
// belong verbatim in an operator's log stream, so callers that want a
// frame or operation's Data in a log field should pass it through here
// rather than logging it directly.
func RedactPayload(data []byte) string {
	if len(data) == 0 {
		return "<empty>"
	}
	n := len(data)
	if n <= maxPayloadPreview {
		return fmt.Sprintf("%d bytes: %s", n, string(data))
	}
	return fmt.Sprintf("%d bytes: %s...", n, string(data[:maxPayloadPreview]))
}
