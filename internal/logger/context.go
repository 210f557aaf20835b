package logger

import "context"

// Standard field keys used across DriftFS log output.
const (
	KeyRequestID = "request_id"
	KeyPrincipal = "principal"
	KeyMount     = "mount"
	KeyPath      = "path"
	KeyOp        = "op"
	KeyClientIP  = "client_ip"
)

// LogContext carries request-scoped fields that every log line emitted while
// serving the request should include.
type LogContext struct {
	RequestID string
	Principal string
	Mount     string
	Path      string
	Op        string
	ClientIP  string
}

type logContextKey struct{}

// WithContext attaches a LogContext to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

// appendContextFields prepends LogContext fields so they appear first in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 12+len(args))
	if lc.RequestID != "" {
		ctxArgs = append(ctxArgs, KeyRequestID, lc.RequestID)
	}
	if lc.Principal != "" {
		ctxArgs = append(ctxArgs, KeyPrincipal, lc.Principal)
	}
	if lc.Mount != "" {
		ctxArgs = append(ctxArgs, KeyMount, lc.Mount)
	}
	if lc.Path != "" {
		ctxArgs = append(ctxArgs, KeyPath, lc.Path)
	}
	if lc.Op != "" {
		ctxArgs = append(ctxArgs, KeyOp, lc.Op)
	}
	if lc.ClientIP != "" {
		ctxArgs = append(ctxArgs, KeyClientIP, lc.ClientIP)
	}
	return append(ctxArgs, args...)
}
