// Package elastic implements engine.Engine over the Elasticsearch HTTP API.
package elastic

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
)

// Compile-time check: Store implements engine.Engine.
var _ engine.Engine = (*Store)(nil)

// Config holds connection parameters shared by every endpoint.
type Config struct {
	Username string
	Password string
	APIKey   string
	// Refresh is passed on document writes: "false", "true" or "wait_for".
	Refresh    string
	MaxRetries int
	Transport  http.RoundTripper
}

// Store implements engine.Engine. One client is kept per endpoint, created lazily.
type Store struct {
	cfg     Config
	mu      sync.RWMutex
	clients map[tenant.Endpoint]*elasticsearch.Client
}

// NewStore creates an elastic store.
func NewStore(cfg Config) *Store {
	if cfg.Refresh == "" {
		cfg.Refresh = "false"
	}
	return &Store{
		cfg:     cfg,
		clients: make(map[tenant.Endpoint]*elasticsearch.Client),
	}
}

func (s *Store) client(ep tenant.Endpoint) (*elasticsearch.Client, error) {
	s.mu.RLock()
	c, ok := s.clients[ep]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[ep]; ok {
		return c, nil
	}
	// negative MaxRetries disables retries, zero keeps the client default
	retries := max(s.cfg.MaxRetries, 0)
	c, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{ep.String()},
		Username:     s.cfg.Username,
		Password:     s.cfg.Password,
		APIKey:       s.cfg.APIKey,
		MaxRetries:   retries,
		DisableRetry: s.cfg.MaxRetries < 0,
		Transport:    s.cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", ep, err)
	}
	s.clients[ep] = c
	return c, nil
}

// Ping checks that the endpoint answers.
func (s *Store) Ping(ctx context.Context, ep tenant.Endpoint) error {
	c, err := s.client(ep)
	if err != nil {
		return err
	}
	res, err := c.Ping(c.Ping.WithContext(ctx))
	if err != nil {
		return transportErr(engine.OpPing, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseErr(engine.OpPing, res)
	}
	return nil
}

// WaitForReady polls Ping until the endpoint responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, ep tenant.Endpoint, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for engine %s: %w", ep, ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx, ep); err == nil {
				return nil
			}
		}
	}
}
