package common

import "context"

type ctxKey string

const (
	userKey  ctxKey = "auth/user"
	tokenKey ctxKey = "auth/token"
)

// User describes the authenticated caller as extracted from the access token.
type User struct {
	ID       string
	Username string
	Email    string
	FullName string
}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom extracts the authenticated user from the context if present.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}

// WithToken stores the raw bearer token so collaborator calls can forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom extracts the raw bearer token from the context.
func TokenFrom(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}
