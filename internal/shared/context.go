package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context. The session middleware
// does this once per request; everything downstream reads it back out.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session placed by the session middleware,
// or nil on routes mounted outside it.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
