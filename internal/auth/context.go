package auth

import (
	"context"
	"strings"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID   string
	UserName string
	Email    string
	Roles    []string
}

// PrincipalFromClaims builds the principal described by verified claims.
func PrincipalFromClaims(c *Claims) Principal {
	if c == nil {
		return Principal{}
	}
	return Principal{
		UserID:   c.Subject,
		UserName: c.Name,
		Email:    c.Email,
		Roles:    dedupeRoles(c.Roles),
	}
}

// HasRole reports whether p holds role, compared case-insensitively.
func (p Principal) HasRole(role string) bool {
	key := NormalizeRoleName(role)
	if key == "" {
		return false
	}
	for _, r := range p.Roles {
		if NormalizeRoleName(r) == key {
			return true
		}
	}
	return false
}

// Label returns the name audit entries attribute to p.
func (p Principal) Label() string {
	for _, v := range []string{p.Email, p.UserName, p.UserID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// HasRole checks whether the context principal holds role.
func HasRole(ctx context.Context, role string) bool {
	p, ok := PrincipalFromContext(ctx)
	return ok && p.HasRole(role)
}
