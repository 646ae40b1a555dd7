package common

import "context"

type ctxKey string

const (
	userIDKey    ctxKey = "auth/user-id"
	userEmailKey ctxKey = "auth/user-email"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithUserEmail stores the authenticated user's email on the provided context.
// The checkout flow caches it into the payment customer mapping.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// UserEmail extracts the authenticated user's email from the context if present.
func UserEmail(ctx context.Context) (string, bool) {
	v := ctx.Value(userEmailKey)
	if v == nil {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}
