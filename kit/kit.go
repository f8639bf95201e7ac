// Package kit holds the transport-neutral endpoint type shared by the HTTP API
// and the MCP tools, plus the context keys both transports populate.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation, independent of how it is reached.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the wrapped endpoint with its duration.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			log := logger.With("endpoint", name, "transport", GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds())
			if traceID := GetTraceID(ctx); traceID != "" {
				log = log.With("trace_id", traceID)
			}
			if err != nil {
				log.Warn("kit: endpoint failed", "error", err)
			} else {
				log.Debug("kit: endpoint ok")
			}
			return resp, err
		}
	}
}
