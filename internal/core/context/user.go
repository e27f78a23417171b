package context

import (
	"context"
)

// SystemUser is recorded as the actor of movements and alert transitions
// produced by background jobs.
const SystemUser = "system"

// UserContext identifies the caller on whose behalf stock is mutated.
// Authentication happens upstream; the ledger only records who asked.
type UserContext struct {
	UserID string
	Source string // "http", "kafka", "scheduler"
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or SystemUser when none is set.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil && u.UserID != "" {
		return u.UserID
	}
	return SystemUser
}
