package shared

import "context"

type sessionIDContextKey struct{}

// ContextWithSessionID stores the compressed session id in context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, id)
}

// SessionIDFromContext extracts the compressed session id from context.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey{}).(string)
	return id
}
