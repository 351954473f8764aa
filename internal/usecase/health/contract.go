package health

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
)

// EnginePinger checks search engine availability.
type EnginePinger interface {
	Ping(ctx context.Context, endpoint tenant.Endpoint) error
}

// CachePinger checks the shared index cache backend.
type CachePinger interface {
	Ping(ctx context.Context) error
}
