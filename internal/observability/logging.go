// Package observability provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the dispatcher.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with request correlation and secret redaction.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	// AddSource includes file:line in records.
	AddSource bool

	// RedactPatterns are additional regexes masked in output.
	RedactPatterns []string
}

// ContextKey is the type for context keys carried into log records.
type ContextKey string

const (
	// RequestIDKey correlates all records of one request.
	RequestIDKey ContextKey = "request_id"

	// ChannelIDKey is the originating channel.
	ChannelIDKey ContextKey = "channel_id"

	// JobKey is the scheduled job name, when the request is time-initiated.
	JobKey ContextKey = "job"
)

// defaultRedactPatterns mask common secret shapes before they reach a sink.
var defaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey|secret|password|token)[\s:=]+["']?([^\s"']{8,})["']?`,
	`(?i)bearer\s+[a-zA-Z0-9_\-\.]{16,}`,
	// Discord bot tokens: base64 id, dot, timestamp, dot, hmac.
	`[A-Za-z\d]{23,28}\.[\w-]{6,7}\.[\w-]{27,38}`,
}

// NewLogger builds a structured logger. Empty fields take defaults.
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     LevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(defaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, defaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// With returns a logger with fixed attributes, typically a component name.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}

// Slog exposes the underlying slog.Logger for collaborators that expect one.
func (l *Logger) Slog() *slog.Logger { return l.logger }

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	redacted := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			redacted[i] = l.redact(v)
		case error:
			redacted[i] = l.redact(v.Error())
		default:
			redacted[i] = arg
		}
	}

	attrs := make([]any, 0, len(redacted)+6)
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if ch, ok := ctx.Value(ChannelIDKey).(string); ok && ch != "" {
		attrs = append(attrs, "channel_id", ch)
	}
	if job, ok := ctx.Value(JobKey).(string); ok && job != "" {
		attrs = append(attrs, "job", job)
	}
	attrs = append(attrs, redacted...)

	l.logger.Log(ctx, level, l.redact(msg), attrs...)
}

func (l *Logger) redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithRequestID stores a request ID in the context for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithChannelID stores the originating channel in the context.
func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ChannelIDKey, channelID)
}

// WithJob stores the scheduled job name in the context.
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, JobKey, job)
}

// RequestID retrieves the request ID from the context, if any.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// LevelFromString converts a level name to slog.Level, defaulting to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
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
