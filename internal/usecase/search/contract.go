package search

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
)

// Router resolves the index a tenant's queries run against.
type Router interface {
	Descriptor(tenantID string, stage tenant.Stage) (tenant.Descriptor, error)
}

// Searcher executes a query body against one index.
type Searcher interface {
	Search(ctx context.Context, t engine.Target, body []byte) (*engine.SearchResult, error)
}
