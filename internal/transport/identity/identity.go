// Package identity validates caller credentials and extracts the tenant they act for.
package identity

import (
	"context"
	"strings"
)

// Principal is an authenticated caller.
type Principal struct {
	TenantID string
	Subject  string
}

// Validator checks an Authorization header value. Any failure wraps
// domain.ErrUnauthenticated.
type Validator interface {
	Validate(ctx context.Context, authorization string) (Principal, error)
}

type principalKey struct{}

// ContextWithPrincipal stores p in ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// bearerToken strips an optional "Bearer " scheme.
func bearerToken(authorization string) string {
	v := strings.TrimSpace(authorization)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}

// claimsPrincipal reads the tenant and subject from a claims object. Both the
// snake and camel case spellings of the tenant claim are accepted.
func claimsPrincipal(claims map[string]any) (Principal, bool) {
	var p Principal
	for _, k := range []string{"tenant_id", "tenantId"} {
		if s, ok := claims[k].(string); ok && strings.TrimSpace(s) != "" {
			p.TenantID = strings.TrimSpace(s)
			break
		}
	}
	for _, k := range []string{"sub", "email", "user_id"} {
		if s, ok := claims[k].(string); ok && s != "" {
			p.Subject = s
			break
		}
	}
	return p, p.TenantID != ""
}
