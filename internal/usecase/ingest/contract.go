package ingest

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/domain/stream"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
)

// Router resolves tenants and stages.
type Router interface {
	Resolve(tenantID string) (tenant.Endpoint, error)
	StageFor(sourceRef string) (tenant.Stage, error)
}

// Provisioner makes sure the target index exists.
type Provisioner interface {
	EnsureIndex(ctx context.Context, d tenant.Descriptor) error
	Forget(ctx context.Context, index string)
}

// Writer applies projected documents to the engine.
type Writer interface {
	IndexDocument(ctx context.Context, t engine.Target, id string, body []byte) (engine.WriteOutcome, error)
	DeleteDocument(ctx context.Context, t engine.Target, id string) (engine.DeleteOutcome, error)
}

// DeadLetterSink archives events that failed terminally.
type DeadLetterSink interface {
	Name() string
	Archive(ctx context.Context, dl stream.DeadLetter) error
}
