// Package requestctx carries per-request values between middleware, handlers and services.
package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type (
	loggerKey  struct{}
	traceKey   struct{}
	sessionKey struct{}
)

var nop = zap.NewNop()

// TraceInfo is the span a request runs under.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// CloudTrace formats the trace for the logging.googleapis.com/trace field, or "" without a project.
func (t TraceInfo) CloudTrace() string {
	if t.ProjectID == "" || t.TraceID == "" {
		return ""
	}
	return "projects/" + t.ProjectID + "/traces/" + t.TraceID
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request logger, or a no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	return LoggerOr(ctx, nop)
}

// LoggerOr returns the request logger, or fallback when the context has none.
func LoggerOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
			return logger
		}
	}
	return fallback
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithSessionID records the anonymous storefront session that owns the cart.
// Blank IDs leave ctx unchanged.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// LogFields describes the request for log correlation: trace, Cloud Logging trace link and session.
func LogFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if info, ok := Trace(ctx); ok && info.TraceID != "" {
		fields = append(fields, zap.String("trace_id", info.TraceID))
		if link := info.CloudTrace(); link != "" {
			fields = append(fields, zap.String("logging.googleapis.com/trace", link))
		}
	}
	if session := SessionID(ctx); session != "" {
		fields = append(fields, zap.String("session_id", session))
	}
	return fields
}
