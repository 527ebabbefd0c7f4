package logger

import "context"

type requestIDKey struct{}

// WithRequestID stores a request ID on the context. The HTTP layer calls
// this once per request so every log line below it can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored on the context, or "" when the
// request never passed through the HTTP middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
