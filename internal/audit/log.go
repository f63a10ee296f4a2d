// Package audit records security-relevant events as structured log records
// tagged type=audit.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"pickly.app/internal/auth"
	"pickly.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging. Requests routed through chi's RequestID middleware need not call it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return middleware.GetReqID(ctx)
}

// LogEvent writes an audit record enriched with request and principal
// context. Callers must not pass secrets or tokens in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	return LogEventTo(ctx, obs.Logger(), event, fields)
}

// LogEventTo is LogEvent with an explicit logger.
func LogEventTo(ctx context.Context, logger *slog.Logger, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if id, ok := auth.PrincipalIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("principal_id", id))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	group := make([]any, 0, len(keys))
	for _, k := range keys {
		group = append(group, slog.Any(k, fields[k]))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
