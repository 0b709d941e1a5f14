// Package logger sets up JSON structured logging on log/slog and
// carries a per-signal trace id through context.Context so every log
// line, audit row and notification for one webhook receipt share an id.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type ctxKey struct{}

// Init builds the service logger: a JSON handler on stdout tagged with
// the service name. It is installed as the slog default so package-level
// slog calls inherit the handler.
func Init(service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	l := slog.New(h).With(slog.String("service", service))
	slog.SetDefault(l)
	return l
}

// WithTraceID stores a trace id in the context for downstream calls.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// TraceID extracts the trace id from context, or "" when unset.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// GenerateTraceID derives a trace id from a receipt token (usually the
// raw symbol) and the receipt time: "{token}-{unixNano}".
func GenerateTraceID(token string, ts time.Time) string {
	return token + "-" + strconv.FormatInt(ts.UnixNano(), 10)
}

// LogWithTrace returns slog attrs carrying the context's trace id.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
