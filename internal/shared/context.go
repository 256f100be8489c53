package shared

import "context"

type callerContextKey struct{}

type guidContextKey struct{}

// ContextWithCaller stores the caller identity in context.
func ContextWithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, callerID)
}

// CallerFromContext extracts the caller identity from context.
func CallerFromContext(ctx context.Context) string {
	callerID, _ := ctx.Value(callerContextKey{}).(string)
	return callerID
}

// ContextWithGUID stores the request correlation GUID in context.
func ContextWithGUID(ctx context.Context, guid string) context.Context {
	return context.WithValue(ctx, guidContextKey{}, guid)
}

// GUIDFromContext extracts the request correlation GUID from context.
func GUIDFromContext(ctx context.Context) string {
	guid, _ := ctx.Value(guidContextKey{}).(string)
	return guid
}
