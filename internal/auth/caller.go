package auth

import "context"

// Caller is the authenticated identity attached to a request.
type Caller struct {
	ID      int64
	Email   string
	IsAdmin bool

	// Token identity, used to revoke the session on logout.
	TokenID   string
	ExpiresAt int64
}

type callerKey struct{}

// WithCaller returns a context carrying the caller.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx, or nil.
func CallerFrom(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}
