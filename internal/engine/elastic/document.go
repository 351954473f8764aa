package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kailas-cloud/indexsync/internal/engine"
)

type writeResponse struct {
	Result string `json:"result"`
}

// IndexDocument writes the document, replacing any previous version.
func (s *Store) IndexDocument(ctx context.Context, t engine.Target, id string, body []byte) (engine.WriteOutcome, error) {
	c, err := s.client(t.Endpoint)
	if err != nil {
		return 0, err
	}
	res, err := c.Index(t.Index, bytes.NewReader(body),
		c.Index.WithDocumentID(id),
		c.Index.WithContext(ctx),
		c.Index.WithRefresh(s.cfg.Refresh),
	)
	if err != nil {
		return 0, transportErr(engine.OpIndex, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, responseErr(engine.OpIndex, res)
	}
	var wr writeResponse
	if err := json.NewDecoder(res.Body).Decode(&wr); err == nil && wr.Result == "created" {
		return engine.DocumentCreated, nil
	}
	return engine.DocumentUpdated, nil
}

// DeleteDocument removes the document. A missing document or index reports
// DocumentNotFound.
func (s *Store) DeleteDocument(ctx context.Context, t engine.Target, id string) (engine.DeleteOutcome, error) {
	c, err := s.client(t.Endpoint)
	if err != nil {
		return 0, err
	}
	res, err := c.Delete(t.Index, id,
		c.Delete.WithContext(ctx),
		c.Delete.WithRefresh(s.cfg.Refresh),
	)
	if err != nil {
		return 0, transportErr(engine.OpDelete, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return engine.DocumentNotFound, nil
	}
	if res.IsError() {
		return 0, responseErr(engine.OpDelete, res)
	}
	return engine.DocumentDeleted, nil
}
