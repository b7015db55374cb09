package auth

import "context"

type sessionKey struct{}

// WithSession attaches a verified session to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session attached to ctx.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// OperatorID returns the authenticated operator id, or "" when absent.
func OperatorID(ctx context.Context) string {
	s, _ := SessionFrom(ctx)
	return s.OperatorID
}
