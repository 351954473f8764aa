package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/metrics"
)

// DefaultWarmConcurrency bounds parallel provisioning in Warm.
const DefaultWarmConcurrency = 4

// Service makes sure indices exist before documents are written to them.
type Service struct {
	engine          IndexManager
	cache           IndexCache
	schema          SchemaOptions
	warmConcurrency int
	logger          *zap.Logger
	inflight        singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithSchema sets shard and replica counts for created indices.
func WithSchema(opts SchemaOptions) Option {
	return func(s *Service) { s.schema = opts }
}

// WithWarmConcurrency bounds parallel provisioning in Warm.
func WithWarmConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.warmConcurrency = n
		}
	}
}

// New creates a provisioning service.
func New(idx IndexManager, cache IndexCache, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		engine:          idx,
		cache:           cache,
		warmConcurrency: DefaultWarmConcurrency,
		logger:          logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureIndex creates the descriptor's index unless it is known to exist.
// Concurrent calls for the same index share one engine round trip.
func (s *Service) EnsureIndex(ctx context.Context, d tenant.Descriptor) error {
	if d.IndexName == "" {
		return fmt.Errorf("%w: empty index name", domain.ErrIndexProvision)
	}
	if s.cache.Contains(ctx, d.IndexName) {
		metrics.IndexCacheTotal.WithLabelValues("hit").Inc()
		return nil
	}
	metrics.IndexCacheTotal.WithLabelValues("miss").Inc()

	key := d.Endpoint.String() + "|" + d.IndexName
	_, err, _ := s.inflight.Do(key, func() (any, error) {
		return nil, s.provision(ctx, d)
	})
	return err
}

func (s *Service) provision(ctx context.Context, d tenant.Descriptor) error {
	t := engine.TargetFor(d)

	exists, err := s.engine.IndexExists(ctx, t)
	if err != nil {
		metrics.IndexProvisionTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: probe %s: %w", domain.ErrIndexProvision, d.IndexName, err)
	}
	if exists {
		metrics.IndexProvisionTotal.WithLabelValues("exists").Inc()
		s.cache.Add(ctx, d.IndexName)
		return nil
	}

	def, err := RecordSchema(d.IndexName, s.schema)
	if err != nil {
		metrics.IndexProvisionTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: schema for %s: %w", domain.ErrIndexProvision, d.IndexName, err)
	}
	out, err := s.engine.CreateIndex(ctx, t, def)
	if err != nil {
		metrics.IndexProvisionTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: create %s: %w", domain.ErrIndexProvision, d.IndexName, err)
	}

	if out == engine.IndexAlreadyExists {
		metrics.IndexProvisionTotal.WithLabelValues("already_exists").Inc()
	} else {
		metrics.IndexProvisionTotal.WithLabelValues("created").Inc()
		s.logger.Info("Index created",
			zap.String("tenant", d.TenantID),
			zap.String("stage", string(d.Stage)),
			zap.String("index", d.IndexName),
			zap.String("endpoint", d.Endpoint.String()),
		)
	}
	s.cache.Add(ctx, d.IndexName)
	return nil
}

// Forget drops a memoized index, so the next EnsureIndex probes the engine again.
func (s *Service) Forget(ctx context.Context, index string) {
	s.cache.Remove(ctx, index)
}

// Warm provisions every descriptor with bounded parallelism. All descriptors are
// attempted; failures are joined.
func (s *Service) Warm(ctx context.Context, ds []tenant.Descriptor) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.warmConcurrency)

	for _, d := range ds {
		g.Go(func() error {
			if err := s.EnsureIndex(ctx, d); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Recreate drops and provisions the index again. Existing documents are lost.
func (s *Service) Recreate(ctx context.Context, d tenant.Descriptor) error {
	if err := s.engine.DropIndex(ctx, engine.TargetFor(d)); err != nil {
		return fmt.Errorf("%w: drop %s: %w", domain.ErrIndexProvision, d.IndexName, err)
	}
	s.Forget(ctx, d.IndexName)
	return s.EnsureIndex(ctx, d)
}
