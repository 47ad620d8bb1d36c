package auth

import "context"

// IdentityProvider resolves the user on whose behalf an operation runs.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

type identityKey struct{}

// WithUserID stores the authenticated user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(identityKey{}).(string)
	return userID, ok && userID != ""
}

// ContextIdentity reads the identity placed on the context by the authentication middleware.
type ContextIdentity struct{}

// CurrentUserID implements IdentityProvider.
func (ContextIdentity) CurrentUserID(ctx context.Context) (string, bool) {
	return UserIDFromContext(ctx)
}

// StaticIdentity always reports the same user. An empty value means signed out.
type StaticIdentity string

// CurrentUserID implements IdentityProvider.
func (s StaticIdentity) CurrentUserID(context.Context) (string, bool) {
	return string(s), s != ""
}
