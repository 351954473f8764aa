// Package bootstrap assembles the pipeline components shared by the API server,
// the stream handler and the CLI from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/config"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/engine/elastic"
	"github.com/kailas-cloud/indexsync/internal/repository/deadletter"
	"github.com/kailas-cloud/indexsync/internal/repository/indexcache"
	"github.com/kailas-cloud/indexsync/internal/routing"
	"github.com/kailas-cloud/indexsync/internal/transport/identity"
	"github.com/kailas-cloud/indexsync/internal/usecase/health"
	"github.com/kailas-cloud/indexsync/internal/usecase/ingest"
	"github.com/kailas-cloud/indexsync/internal/usecase/provision"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// Pipeline holds the wired components. Close releases them.
type Pipeline struct {
	Config      config.Config
	Router      *routing.Router
	Engine      engine.Engine
	Cache       provision.IndexCache
	CachePinger health.CachePinger
	Provisioner *provision.Service
	Sink        ingest.DeadLetterSink
	logger      *zap.Logger
	closers     []func()
}

// NewPipeline connects to the configured engine and builds the pipeline.
func NewPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Pipeline, error) {
	store := elastic.NewStore(elastic.Config{
		Username:   cfg.Engine.Username,
		Password:   cfg.Engine.Password,
		APIKey:     cfg.Engine.APIKey,
		Refresh:    cfg.Engine.Refresh,
		MaxRetries: cfg.Engine.MaxRetries,
	})
	return NewPipelineWithEngine(ctx, cfg, store, logger)
}

// NewPipelineWithEngine builds the pipeline over an existing engine.
func NewPipelineWithEngine(ctx context.Context, cfg config.Config, eng engine.Engine, logger *zap.Logger) (*Pipeline, error) {
	router, err := routing.New(cfg.Routing())
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	p := &Pipeline{
		Config: cfg,
		Router: router,
		Engine: engine.NewInstrumented(eng, logger),
		logger: logger,
	}

	if err := p.buildCache(cfg.Cache); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.buildSink(ctx, cfg.DeadLetter); err != nil {
		p.Close()
		return nil, err
	}

	p.Provisioner = provision.New(p.Engine, p.Cache, logger,
		provision.WithSchema(provision.SchemaOptions{Shards: cfg.Engine.Shards, Replicas: cfg.Engine.Replicas}),
		provision.WithWarmConcurrency(cfg.Engine.WarmConcurrency),
	)
	return p, nil
}

func (p *Pipeline) buildCache(cfg config.CacheConfig) error {
	ttl := time.Duration(cfg.TTLSec) * time.Second
	switch cfg.Driver {
	case "redis":
		r, err := indexcache.NewRedis(indexcache.RedisConfig{
			Addrs:     cfg.Redis.Addrs,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       ttl,
		}, p.logger)
		if err != nil {
			return fmt.Errorf("connect index cache: %w", err)
		}
		p.Cache = r
		p.CachePinger = r
		p.closers = append(p.closers, r.Close)
	case "none":
		p.Cache = indexcache.Nop{}
	default:
		p.Cache = indexcache.NewMemory(cfg.Size, ttl)
	}
	return nil
}

func (p *Pipeline) buildSink(ctx context.Context, cfg config.DeadLetterConfig) error {
	switch cfg.Driver {
	case "s3":
		s, err := deadletter.NewS3(ctx, deadletter.S3Config{
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("create dead letter sink: %w", err)
		}
		p.Sink = s
	case "none":
	default:
		p.Sink = deadletter.NewLog(p.logger)
	}
	return nil
}

// Dispatcher creates a dispatcher labeled with source. The caller closes it.
func (p *Pipeline) Dispatcher(source string) (*ingest.Dispatcher, error) {
	opts := []ingest.Option{
		ingest.WithSource(source),
		ingest.WithPoolSize(p.Config.Ingest.PoolSize),
	}
	if p.Sink != nil {
		opts = append(opts, ingest.WithDeadLetters(p.Sink))
	}
	return ingest.New(p.Router, p.Provisioner, p.Engine, p.logger, opts...)
}

// Search creates the search service for the configured stage.
func (p *Pipeline) Search() *searchuc.Service {
	var opts []searchuc.Option
	for s, d := range p.Config.Timeouts() {
		opts = append(opts, searchuc.WithTimeout(s, d))
	}
	return searchuc.New(p.Router, p.Engine, p.Stage(), p.logger, opts...)
}

// Health creates the health service over every engine endpoint and the shared cache.
func (p *Pipeline) Health() *health.Service {
	return health.New(p.Engine, p.Router.Endpoints(), p.CachePinger)
}

// Warm provisions the index of every allowed tenant for the configured stage.
func (p *Pipeline) Warm(ctx context.Context) error {
	return p.Provisioner.Warm(ctx, p.Router.Descriptors(p.Stage()))
}

// Stage returns the configured stage.
func (p *Pipeline) Stage() tenant.Stage { return tenant.Stage(p.Config.Stage) }

// Close releases connections in reverse order.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

// NewValidator builds the caller authentication chain. Mode "none" returns nil.
func NewValidator(cfg config.AuthConfig) (identity.Validator, error) {
	var v identity.Validator
	switch cfg.Mode {
	case "none":
		return nil, nil
	case "jwt":
		j, err := identity.NewJWT(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			return nil, err
		}
		v = j
	case "remote":
		v = identity.NewRemote(cfg.ValidateURL, nil)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	if cfg.CacheTTLSec > 0 {
		v = identity.NewCached(v, cfg.CacheSize, time.Duration(cfg.CacheTTLSec)*time.Second)
	}
	return v, nil
}
