// Package engine is the search engine facade. Adapters (elastic) implement the
// narrow sub-interfaces; consumers depend only on the ones they use.
package engine

import (
	"context"
	"encoding/json"

	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
)

// Engine is the full facade combining all sub-interfaces.
type Engine interface {
	Pinger
	IndexManager
	DocumentWriter
	Searcher
}

// Target addresses one index on one engine endpoint.
type Target struct {
	Endpoint tenant.Endpoint
	Index    string
}

// TargetFor returns the target of a descriptor.
func TargetFor(d tenant.Descriptor) Target {
	return Target{Endpoint: d.Endpoint, Index: d.IndexName}
}

// Pinger checks engine connectivity.
type Pinger interface {
	Ping(ctx context.Context, endpoint tenant.Endpoint) error
}

// CreateOutcome is the result of an index creation.
type CreateOutcome int

// Index creation outcomes.
const (
	IndexCreated CreateOutcome = iota
	IndexAlreadyExists
)

// IndexManager provides index lifecycle operations.
type IndexManager interface {
	IndexExists(ctx context.Context, t Target) (bool, error)
	CreateIndex(ctx context.Context, t Target, def *IndexDefinition) (CreateOutcome, error)
	DropIndex(ctx context.Context, t Target) error
}

// WriteOutcome is the result of a document write.
type WriteOutcome int

// Document write outcomes.
const (
	DocumentCreated WriteOutcome = iota
	DocumentUpdated
)

func (o WriteOutcome) String() string {
	switch o {
	case DocumentCreated:
		return "created"
	case DocumentUpdated:
		return "updated"
	}
	return "unknown"
}

// DeleteOutcome is the result of a document delete.
type DeleteOutcome int

// Document delete outcomes.
const (
	DocumentDeleted DeleteOutcome = iota
	DocumentNotFound
)

func (o DeleteOutcome) String() string {
	if o == DocumentDeleted {
		return "deleted"
	}
	return "not_found"
}

// DocumentWriter writes single documents by id.
type DocumentWriter interface {
	// IndexDocument writes unconditionally, replacing any existing document.
	IndexDocument(ctx context.Context, t Target, id string, body []byte) (WriteOutcome, error)
	DeleteDocument(ctx context.Context, t Target, id string) (DeleteOutcome, error)
}

// Searcher executes search requests.
type Searcher interface {
	Search(ctx context.Context, t Target, body []byte) (*SearchResult, error)
}

// SearchResult is the output of a search. IndexMissing is set instead of an error when
// the target index does not exist.
type SearchResult struct {
	IndexMissing bool
	Total        int
	TookMillis   int
	Hits         []SearchHit
}

// SearchHit is a single document hit.
type SearchHit struct {
	ID        string
	Score     float64
	Source    json.RawMessage
	Highlight map[string][]string
}
