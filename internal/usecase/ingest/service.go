package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/attr"
	"github.com/kailas-cloud/indexsync/internal/domain/record"
	"github.com/kailas-cloud/indexsync/internal/domain/stream"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	"github.com/kailas-cloud/indexsync/internal/projector"
)

// DefaultPoolSize bounds the events of a batch processed at the same time.
const DefaultPoolSize = 8

// Dispatcher applies change events to the tenant indices.
type Dispatcher struct {
	router   Router
	prov     Provisioner
	writer   Writer
	sink     DeadLetterSink
	pool     *ants.Pool
	poolSize int
	source   string
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeadLetters archives terminal failures to sink.
func WithDeadLetters(sink DeadLetterSink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

// WithPoolSize sets the worker pool size.
func WithPoolSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.poolSize = n
		}
	}
}

// WithSource names the feed in batch metrics ("lambda", "nats", "replay").
func WithSource(name string) Option {
	return func(d *Dispatcher) { d.source = name }
}

// WithClock overrides the dead-letter timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher and its worker pool. Call Close to release the pool.
func New(router Router, prov Provisioner, writer Writer, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		router:   router,
		prov:     prov,
		writer:   writer,
		poolSize: DefaultPoolSize,
		source:   "unknown",
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(d)
	}

	pool, err := ants.NewPool(d.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Close releases the worker pool.
func (d *Dispatcher) Close() {
	d.pool.Release()
}

// Report summarizes a dispatched batch. Outcomes follow the input order.
type Report struct {
	BatchID   string
	Outcomes  []stream.Outcome
	Processed int
	Ignored   int
	Failed    int
	Duration  time.Duration
}

// Retryable reports whether any event should be redelivered.
func (r Report) Retryable() bool {
	for _, o := range r.Outcomes {
		if o.Retryable() {
			return true
		}
	}
	return false
}

// RetryableSequences returns the feed positions of events to redeliver.
func (r Report) RetryableSequences() []string {
	var seqs []string
	for _, o := range r.Outcomes {
		if o.Retryable() {
			seqs = append(seqs, o.Sequence)
		}
	}
	return seqs
}

// Dispatch processes a batch concurrently and waits for every event. A failing
// event never blocks the others. The error is non-nil only when at least one
// outcome is retryable; terminal failures are archived instead.
func (d *Dispatcher) Dispatch(ctx context.Context, events []stream.Event) (Report, error) {
	start := time.Now()
	report := Report{
		BatchID:  uuid.NewString(),
		Outcomes: make([]stream.Outcome, len(events)),
	}
	ctx, log := logger.With(ctx, d.logger, zap.String("batch_id", report.BatchID))

	var wg sync.WaitGroup
	for i, e := range events {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			report.Outcomes[i] = d.safeHandle(ctx, e)
		}
		if err := d.pool.Submit(task); err != nil {
			// Pool closed or overloaded: run on the caller.
			task()
		}
	}
	wg.Wait()

	for i, o := range report.Outcomes {
		switch o.Status {
		case stream.StatusProcessed:
			report.Processed++
		case stream.StatusIgnored:
			report.Ignored++
		case stream.StatusError:
			report.Failed++
			if o.Terminal() {
				d.deadLetter(ctx, log, report.BatchID, events[i], o)
			}
		}
		metrics.EventsTotal.WithLabelValues(kindLabel(o.Kind), string(o.Status), o.Reason).Inc()
		logOutcome(log, o)
	}

	report.Duration = time.Since(start)
	metrics.BatchDuration.WithLabelValues(d.source).Observe(report.Duration.Seconds())

	if seqs := report.RetryableSequences(); len(seqs) > 0 {
		return report, fmt.Errorf("%w: %d of %d events", domain.ErrRedeliver, len(seqs), len(events))
	}
	return report, nil
}

func (d *Dispatcher) safeHandle(ctx context.Context, e stream.Event) (out stream.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(e, fmt.Errorf("panic: %v", r))
		}
	}()
	return d.handle(ctx, e)
}

// handle walks one event through decode, routing, projection and the engine write.
func (d *Dispatcher) handle(ctx context.Context, e stream.Event) stream.Outcome {
	if err := e.Malformed(); err != nil {
		return failed(e, err)
	}

	img, err := attr.Decode(e.Image())
	if err != nil {
		return failed(e, err)
	}

	tenantID := record.TenantHint(img)
	var endpoint tenant.Endpoint
	if tenantID != "" {
		endpoint, err = d.router.Resolve(tenantID)
		if errors.Is(err, domain.ErrTenantNotAuthorized) {
			return ignored(e, tenantID, stream.ReasonTenantNotConfigured)
		}
		if err != nil {
			return failed(e, err)
		}
	}
	if !e.Kind().IsHandled() {
		return ignored(e, tenantID, stream.ReasonEventNotHandled)
	}
	if tenantID == "" {
		return failed(e, fmt.Errorf("%w: missing %s", domain.ErrInvalidRecord, record.KeyTenantID))
	}

	stage, err := d.router.StageFor(e.SourceRef())
	if err != nil {
		out := failed(e, err)
		out.Tenant = tenantID
		return out
	}
	desc := tenant.NewDescriptor(tenantID, stage, endpoint)

	out := stream.Outcome{
		Status:   stream.StatusProcessed,
		Tenant:   tenantID,
		Kind:     e.Kind(),
		Stage:    string(stage),
		Sequence: e.Sequence(),
	}

	switch {
	case e.Kind() == stream.KindRemove:
		out.RecordID, err = d.remove(ctx, desc, img)
	case len(e.NewImage()) == 0:
		err = fmt.Errorf("%w: %s without new image", domain.ErrInvalidRecord, e.Kind())
	default:
		out.RecordID, err = d.upsert(ctx, desc, img)
	}
	if err != nil {
		out.Status = stream.StatusError
		out.Err = err
	}
	return out
}

func (d *Dispatcher) upsert(ctx context.Context, desc tenant.Descriptor, img map[string]any) (string, error) {
	rec, err := record.FromImage(img)
	if err != nil {
		_, id, _ := record.Identity(img)
		return id, err
	}

	body, err := json.Marshal(projector.Project(rec, desc.Stage))
	if err != nil {
		return rec.RecordID(), fmt.Errorf("%w: encode document: %w", domain.ErrInvalidRecord, err)
	}
	if err := d.prov.EnsureIndex(ctx, desc); err != nil {
		return rec.RecordID(), err
	}

	// INSERT and MODIFY both overwrite: the image is the latest state of the
	// record, and a stale document under the same id must not survive.
	if _, err := d.writer.IndexDocument(ctx, engine.TargetFor(desc), rec.RecordID(), body); err != nil {
		d.forgetMissing(ctx, desc, err)
		return rec.RecordID(), fmt.Errorf("write %s: %w", rec.RecordID(), err)
	}
	return rec.RecordID(), nil
}

func (d *Dispatcher) remove(ctx context.Context, desc tenant.Descriptor, img map[string]any) (string, error) {
	_, id, err := record.Identity(img)
	if err != nil {
		return "", err
	}
	if _, err := d.writer.DeleteDocument(ctx, engine.TargetFor(desc), id); err != nil {
		d.forgetMissing(ctx, desc, err)
		return id, fmt.Errorf("delete %s: %w", id, err)
	}
	return id, nil
}

// forgetMissing drops a memoized index the engine no longer has, so the
// redelivered event provisions it again.
func (d *Dispatcher) forgetMissing(ctx context.Context, desc tenant.Descriptor, err error) {
	if engine.IsIndexNotFound(err) {
		d.prov.Forget(ctx, desc.IndexName)
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, log *zap.Logger, batchID string, e stream.Event, o stream.Outcome) {
	if d.sink == nil {
		return
	}
	dl := stream.NewDeadLetter(batchID, e, o, d.now())
	if err := d.sink.Archive(ctx, dl); err != nil {
		metrics.DeadLettersTotal.WithLabelValues(d.sink.Name(), "failed").Inc()
		log.Error("Dead letter archive failed",
			zap.String("sequence", o.Sequence),
			zap.String("sink", d.sink.Name()),
			zap.Error(err),
		)
		return
	}
	metrics.DeadLettersTotal.WithLabelValues(d.sink.Name(), "stored").Inc()
}

func logOutcome(log *zap.Logger, o stream.Outcome) {
	fields := []zap.Field{
		zap.String("event", string(o.Kind)),
		zap.String("status", string(o.Status)),
		zap.String("tenant", o.Tenant),
		zap.String("stage", o.Stage),
		zap.String("record_id", o.RecordID),
		zap.String("sequence", o.Sequence),
	}
	if o.Reason != "" {
		fields = append(fields, zap.String("reason", o.Reason))
	}

	switch {
	case o.Terminal():
		log.Error("Event failed", append(fields, zap.Bool("retryable", false), zap.Error(o.Err))...)
	case o.Retryable():
		log.Warn("Event failed", append(fields, zap.Bool("retryable", true), zap.Error(o.Err))...)
	default:
		log.Info("Event dispatched", fields...)
	}
}

func failed(e stream.Event, err error) stream.Outcome {
	return stream.Outcome{Status: stream.StatusError, Kind: e.Kind(), Sequence: e.Sequence(), Err: err}
}

func ignored(e stream.Event, tenantID, reason string) stream.Outcome {
	return stream.Outcome{
		Status:   stream.StatusIgnored,
		Reason:   reason,
		Tenant:   tenantID,
		Kind:     e.Kind(),
		Sequence: e.Sequence(),
	}
}

func kindLabel(k stream.Kind) string {
	if !k.IsHandled() {
		return "other"
	}
	return strings.ToLower(string(k))
}
