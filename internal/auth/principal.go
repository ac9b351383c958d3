package auth

import (
	"context"
	"strings"
)

const RoleAdmin = "admin"

// Principal is the authenticated caller as issued by the auth service.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal sets the caller into context (called by middleware)
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom retrieves the caller safely
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}
