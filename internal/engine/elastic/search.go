package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/engine"
)

type searchResponse struct {
	Took     int  `json:"took"`
	TimedOut bool `json:"timed_out"`
	Shards   struct {
		Total  int `json:"total"`
		Failed int `json:"failed"`
	} `json:"_shards"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Score     *float64            `json:"_score"`
			Source    json.RawMessage     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a query DSL body against the target index. A missing index yields
// a result with IndexMissing set. A response missing any shard is an error, never
// a partial result.
func (s *Store) Search(ctx context.Context, t engine.Target, body []byte) (*engine.SearchResult, error) {
	c, err := s.client(t.Endpoint)
	if err != nil {
		return nil, err
	}
	res, err := c.Search(
		c.Search.WithContext(ctx),
		c.Search.WithIndex(t.Index),
		c.Search.WithBody(bytes.NewReader(body)),
		c.Search.WithTrackTotalHits(true),
		c.Search.WithAllowPartialSearchResults(false),
	)
	if err != nil {
		return nil, transportErr(engine.OpSearch, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		rerr := responseErr(engine.OpSearch, res)
		if res.StatusCode == http.StatusNotFound && errorType(rerr) == engine.TypeIndexNotFound {
			return &engine.SearchResult{IndexMissing: true}, nil
		}
		return nil, rerr
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, &engine.Error{
			Op: engine.OpSearch, Status: res.StatusCode,
			Reason: fmt.Sprintf("decode response: %v", err), Err: domain.ErrEngineUnavailable,
		}
	}

	if sr.TimedOut || sr.Shards.Failed > 0 {
		return nil, &engine.Error{
			Op: engine.OpSearch, Status: res.StatusCode,
			Reason: fmt.Sprintf("partial result: timed_out=%t, %d of %d shards failed", sr.TimedOut, sr.Shards.Failed, sr.Shards.Total),
			Err:    domain.ErrEngineUnavailable,
		}
	}

	out := &engine.SearchResult{
		Total:      sr.Hits.Total.Value,
		TookMillis: sr.Took,
		Hits:       make([]engine.SearchHit, 0, len(sr.Hits.Hits)),
	}
	for _, h := range sr.Hits.Hits {
		hit := engine.SearchHit{ID: h.ID, Source: h.Source, Highlight: h.Highlight}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}
