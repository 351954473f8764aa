package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/metrics"
)

// Instrumented wraps an Engine with request metrics and debug logging.
type Instrumented struct {
	inner  Engine
	logger *zap.Logger
}

// NewInstrumented wraps inner.
func NewInstrumented(inner Engine, logger *zap.Logger) *Instrumented {
	return &Instrumented{inner: inner, logger: logger}
}

func (e *Instrumented) observe(op string, t Target, start time.Time, err error) {
	duration := time.Since(start)
	metrics.EngineRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err == nil {
		return
	}

	class := "other"
	switch {
	case errors.Is(err, domain.ErrEngineUnavailable):
		class = "unavailable"
	case errors.Is(err, domain.ErrEngineRejected):
		class = "rejected"
	}
	metrics.EngineErrorsTotal.WithLabelValues(op, class).Inc()
	e.logger.Debug("Engine request failed",
		zap.String("op", op),
		zap.String("endpoint", t.Endpoint.String()),
		zap.String("index", t.Index),
		zap.String("class", class),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
}

// Ping delegates to the inner engine.
func (e *Instrumented) Ping(ctx context.Context, ep tenant.Endpoint) error {
	start := time.Now()
	err := e.inner.Ping(ctx, ep)
	e.observe(OpPing, Target{Endpoint: ep}, start, err)
	return err
}

// IndexExists delegates to the inner engine.
func (e *Instrumented) IndexExists(ctx context.Context, t Target) (bool, error) {
	start := time.Now()
	ok, err := e.inner.IndexExists(ctx, t)
	e.observe(OpIndexExists, t, start, err)
	return ok, err
}

// CreateIndex delegates to the inner engine.
func (e *Instrumented) CreateIndex(ctx context.Context, t Target, def *IndexDefinition) (CreateOutcome, error) {
	start := time.Now()
	out, err := e.inner.CreateIndex(ctx, t, def)
	e.observe(OpCreateIndex, t, start, err)
	return out, err
}

// DropIndex delegates to the inner engine.
func (e *Instrumented) DropIndex(ctx context.Context, t Target) error {
	start := time.Now()
	err := e.inner.DropIndex(ctx, t)
	e.observe(OpDropIndex, t, start, err)
	return err
}

// IndexDocument delegates to the inner engine.
func (e *Instrumented) IndexDocument(ctx context.Context, t Target, id string, body []byte) (WriteOutcome, error) {
	start := time.Now()
	out, err := e.inner.IndexDocument(ctx, t, id, body)
	e.observe(OpIndex, t, start, err)
	return out, err
}

// DeleteDocument delegates to the inner engine.
func (e *Instrumented) DeleteDocument(ctx context.Context, t Target, id string) (DeleteOutcome, error) {
	start := time.Now()
	out, err := e.inner.DeleteDocument(ctx, t, id)
	e.observe(OpDelete, t, start, err)
	return out, err
}

// Search delegates to the inner engine.
func (e *Instrumented) Search(ctx context.Context, t Target, body []byte) (*SearchResult, error) {
	start := time.Now()
	res, err := e.inner.Search(ctx, t, body)
	e.observe(OpSearch, t, start, err)
	return res, err
}
