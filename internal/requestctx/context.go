// Package requestctx provides request-scoped values (user id, correlation id)
// set by middleware and read by handlers and the orchestrator.
package requestctx

import "context"

type contextKey struct{ name string }

var (
	userIDKey        = &contextKey{"user_id"}
	correlationIDKey = &contextKey{"correlation_id"}
)

// SetUserID stores the verified user id in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user id from context, or "" if not set.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// SetCorrelationID stores the per-request correlation id in the context.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id from context, or "" if not set.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
