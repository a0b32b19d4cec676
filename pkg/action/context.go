package action

import (
	"context"

	"github.com/google/uuid"
)

type principalKey struct{}

// WithPrincipal marks ctx as acting for an authenticated user. Handlers use
// it in place of caller-supplied contributor and user ids.
func WithPrincipal(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// Principal returns the authenticated user, if any.
func Principal(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(principalKey{}).(uuid.UUID)
	return id, ok
}

// actingUser resolves the user id for a request: the principal wins.
func actingUser(ctx context.Context, requested *uuid.UUID) *uuid.UUID {
	if id, ok := Principal(ctx); ok {
		return &id
	}
	if requested == nil || *requested == uuid.Nil {
		return nil
	}
	return requested
}
