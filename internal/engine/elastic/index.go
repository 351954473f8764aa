package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/indexsync/internal/engine"
)

// IndexExists probes the index with a HEAD request.
func (s *Store) IndexExists(ctx context.Context, t engine.Target) (bool, error) {
	c, err := s.client(t.Endpoint)
	if err != nil {
		return false, err
	}
	res, err := c.Indices.Exists([]string{t.Index}, c.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, transportErr(engine.OpIndexExists, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, responseErr(engine.OpIndexExists, res)
	}
}

// CreateIndex creates the index. A concurrent creator winning the race is reported as
// IndexAlreadyExists, not as an error.
func (s *Store) CreateIndex(ctx context.Context, t engine.Target, def *engine.IndexDefinition) (engine.CreateOutcome, error) {
	if err := def.Validate(); err != nil {
		return 0, fmt.Errorf("invalid index definition: %w", err)
	}
	c, err := s.client(t.Endpoint)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(def.Body())
	if err != nil {
		return 0, fmt.Errorf("marshal index definition: %w", err)
	}

	res, err := c.Indices.Create(t.Index,
		c.Indices.Create.WithContext(ctx),
		c.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, transportErr(engine.OpCreateIndex, err)
	}
	defer res.Body.Close()

	if !res.IsError() {
		return engine.IndexCreated, nil
	}
	rerr := responseErr(engine.OpCreateIndex, res)
	if errorType(rerr) == engine.TypeIndexAlreadyExists {
		return engine.IndexAlreadyExists, nil
	}
	return 0, rerr
}

// DropIndex deletes the index. A missing index is not an error.
func (s *Store) DropIndex(ctx context.Context, t engine.Target) error {
	c, err := s.client(t.Endpoint)
	if err != nil {
		return err
	}
	res, err := c.Indices.Delete([]string{t.Index}, c.Indices.Delete.WithContext(ctx))
	if err != nil {
		return transportErr(engine.OpDropIndex, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseErr(engine.OpDropIndex, res)
	}
	return nil
}
