package identity

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached remembers successful validations for a short TTL. Failures are never cached.
type Cached struct {
	next  Validator
	cache *expirable.LRU[string, Principal]
}

// NewCached wraps next with an LRU of size entries.
func NewCached(next Validator, size int, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: expirable.NewLRU[string, Principal](size, nil, ttl)}
}

// Validate implements Validator.
func (c *Cached) Validate(ctx context.Context, authorization string) (Principal, error) {
	if p, ok := c.cache.Get(authorization); ok {
		return p, nil
	}
	p, err := c.next.Validate(ctx, authorization)
	if err != nil {
		return Principal{}, err
	}
	c.cache.Add(authorization, p)
	return p, nil
}
