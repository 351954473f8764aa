package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/search/query"
	"github.com/kailas-cloud/indexsync/internal/domain/search/request"
	"github.com/kailas-cloud/indexsync/internal/domain/search/result"
	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/metrics"
)

// Service serves queries against the tenant indices of one stage.
type Service struct {
	router   Router
	engine   Searcher
	stage    tenant.Stage
	timeouts map[strategy.Strategy]time.Duration
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout overrides the engine timeout of one strategy.
func WithTimeout(s strategy.Strategy, d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.timeouts[s] = d
		}
	}
}

// New creates a search service for stage.
func New(router Router, searcher Searcher, stage tenant.Stage, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		router:   router,
		engine:   searcher,
		stage:    stage,
		timeouts: make(map[strategy.Strategy]time.Duration),
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stage returns the stage this service queries.
func (s *Service) Stage() tenant.Stage { return s.stage }

// Search runs req against the tenant's index. A missing index yields an empty
// page. Engine failures and timeouts wrap domain.ErrSearchUnavailable; partial
// results are never returned.
func (s *Service) Search(ctx context.Context, req request.Request) (result.Page, error) {
	desc, err := s.router.Descriptor(req.TenantID(), s.stage)
	if err != nil {
		return result.Page{}, err
	}

	q := query.Build(req)
	if d, ok := s.timeouts[q.Strategy]; ok {
		q.Timeout = d
	}
	body, err := q.JSON()
	if err != nil {
		return result.Page{}, fmt.Errorf("%w: encode query: %w", domain.ErrInvalidQuery, err)
	}

	page := result.Page{
		Offset:          req.Offset(),
		Limit:           req.Limit(),
		Strategy:        req.Strategy(),
		TenantID:        desc.TenantID,
		Stage:           string(desc.Stage),
		Index:           desc.IndexName,
		QueryLength:     req.QueryLength(),
		SuggestionReady: req.SuggestionReady(),
	}

	label := string(req.Strategy())
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, q.Timeout)
	res, err := s.engine.Search(callCtx, engine.TargetFor(desc), body)
	cancel()
	metrics.SearchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(label, "error").Inc()
		s.logger.Warn("Search failed",
			zap.String("tenant", desc.TenantID),
			zap.String("index", desc.IndexName),
			zap.String("strategy", label),
			zap.Duration("timeout", q.Timeout),
			zap.Bool("deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err),
		)
		return result.Page{}, fmt.Errorf("%w: %s: %w", domain.ErrSearchUnavailable, desc.IndexName, err)
	}

	if res.IndexMissing {
		metrics.SearchRequestsTotal.WithLabelValues(label, "index_missing").Inc()
		page.IndexMissing = true
		page.Hits = []result.Hit{}
		return page, nil
	}

	page.Total = res.Total
	page.TookMillis = res.TookMillis
	page.Hits = make([]result.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit, err := toHit(h, req)
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues(label, "error").Inc()
			return result.Page{}, fmt.Errorf("%w: hit %s: %w", domain.ErrSearchUnavailable, h.ID, err)
		}
		page.Hits = append(page.Hits, hit)
	}

	if len(page.Hits) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(label, "empty").Inc()
	} else {
		metrics.SearchRequestsTotal.WithLabelValues(label, "ok").Inc()
	}
	return page, nil
}

func toHit(h engine.SearchHit, req request.Request) (result.Hit, error) {
	var f result.Fields
	if len(h.Source) > 0 {
		if err := json.Unmarshal(h.Source, &f); err != nil {
			return result.Hit{}, fmt.Errorf("decode source: %w", err)
		}
	}
	if f.RecordID == "" {
		f.RecordID = h.ID
	}

	var snippet string
	if req.Strategy() == strategy.Autocomplete {
		snippet = Snippet(f, req.Query())
	}
	return result.New(h.ID, h.Score, f, h.Highlight, snippet), nil
}
