package provision

import (
	"context"

	"github.com/kailas-cloud/indexsync/internal/engine"
)

// IndexManager is the engine surface the provisioner needs.
type IndexManager interface {
	IndexExists(ctx context.Context, t engine.Target) (bool, error)
	CreateIndex(ctx context.Context, t engine.Target, def *engine.IndexDefinition) (engine.CreateOutcome, error)
	DropIndex(ctx context.Context, t engine.Target) error
}

// IndexCache remembers confirmed index names. Implementations are best-effort.
type IndexCache interface {
	Contains(ctx context.Context, index string) bool
	Add(ctx context.Context, index string)
	Remove(ctx context.Context, index string)
}
