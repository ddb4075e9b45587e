// Package requestctx stores per-request values (logger, trace metadata) on
// the context. It sits below observability and httpx so both can share the
// same keys without an import cycle.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type loggerContextKey struct{}

type traceContextKey struct{}

var noopLogger = zap.NewNop()

// TraceInfo is the trace metadata the tracing middleware attaches to each
// request. ProjectID is needed to build the Cloud Logging trace resource name.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the request-scoped logger on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// Logger returns the request-scoped logger, or a no-op logger when none was
// attached. Callers never receive nil.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger instance.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey{}, info)
}

// Trace returns the trace metadata attached by the tracing middleware.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns the current trace identifier, or "" outside a traced request.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
