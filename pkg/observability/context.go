package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	rebuildIDCtxKey contextKey = "rebuild_id"
	userIDCtxKey    contextKey = "user_id"
)

// Standard attribute keys used in logs.
const (
	RebuildIDKey = "rebuild_id"
	UserIDKey    = "user_id"
	DurationKey  = "duration_ms"
	ErrorKey     = "error"
)

// WithRebuildID adds a rebuild ID to the context. If id is empty, a new
// UUID is generated.
func WithRebuildID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, rebuildIDCtxKey, id)
}

// RebuildIDFromContext extracts the rebuild ID from context.
func RebuildIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(rebuildIDCtxKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID adds a user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts the user ID from context.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(userIDCtxKey).(string); ok {
		return id
	}
	return ""
}
