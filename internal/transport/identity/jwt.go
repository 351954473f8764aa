package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

// JWT verifies HMAC-signed tokens locally.
type JWT struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewJWT creates a local validator. issuer and audience are checked when non-empty.
func NewJWT(secret, issuer, audience string) (*JWT, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWT{secret: []byte(secret), opts: opts}, nil
}

// Validate implements Validator.
func (v *JWT) Validate(_ context.Context, authorization string) (Principal, error) {
	raw := bearerToken(authorization)
	if raw == "" {
		return Principal{}, fmt.Errorf("%w: missing credentials", domain.ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	p, ok := claimsPrincipal(claims)
	if !ok {
		return Principal{}, fmt.Errorf("%w: token has no tenant claim", domain.ErrUnauthenticated)
	}
	return p, nil
}
