package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// requestFields are the request-scoped values carried through context and
// attached to log lines by WithContext.
type requestFields struct {
	correlationID string
	userID        string
}

type (
	fieldsKey struct{}
	loggerKey struct{}
)

// New creates a JSON logger on stdout tagged with the service name.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter creates a JSON logger writing to w. Debug level also
// records the source location.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug})
	return slog.New(h).With(slog.String("service", serviceName))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel maps a textual level to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "warning":
		lvl = slog.LevelWarn
	default:
		if err := lvl.UnmarshalText([]byte(s)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	return lvl
}

func fieldsFrom(ctx context.Context) requestFields {
	f, _ := ctx.Value(fieldsKey{}).(requestFields)
	return f
}

func withFields(ctx context.Context, update func(*requestFields)) context.Context {
	f := fieldsFrom(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithCorrelationID stores the request correlation ID in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.correlationID = id })
}

func CorrelationIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).correlationID
}

// WithUserID stores the acting user in ctx for logging.
func WithUserID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *requestFields) { f.userID = id })
}

func UserIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).userID
}

// NewContext stores a request-scoped logger in ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext returns l enriched with the correlation ID, user ID and the
// active span of ctx. Empty values are omitted.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	f := fieldsFrom(ctx)
	attrs := make([]any, 0, 4)
	if f.correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", f.correlationID))
	}
	if f.userID != "" {
		attrs = append(attrs, slog.String("user_id", f.userID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
