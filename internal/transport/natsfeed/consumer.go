// Package natsfeed consumes change events published on NATS JetStream subjects
// cdc.<table>. The table token of the subject is the event's provenance.
package natsfeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/stream"
	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/usecase/ingest"
)

// Defaults for Config.
const (
	DefaultStream   = "CDC"
	DefaultSubject  = "cdc.>"
	DefaultDurable  = "indexsync"
	DefaultNakDelay = 5 * time.Second
)

// Dispatcher applies a batch of change events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []stream.Event) (ingest.Report, error)
}

// Msg is the part of jetstream.Msg the consumer uses.
type Msg interface {
	Subject() string
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// Config configures a Consumer.
type Config struct {
	Stream   string
	Subject  string
	Durable  string
	NakDelay time.Duration
	// MaxDeliver bounds redeliveries of one message; 0 means unlimited.
	MaxDeliver int
}

func (c *Config) applyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Durable == "" {
		c.Durable = DefaultDurable
	}
	if c.NakDelay <= 0 {
		c.NakDelay = DefaultNakDelay
	}
}

// Consumer feeds JetStream messages to a Dispatcher.
type Consumer struct {
	js         jetstream.JetStream
	cfg        Config
	dispatcher Dispatcher
	logger     *zap.Logger
}

// New creates a consumer on an established connection.
func New(nc *nats.Conn, d Dispatcher, cfg Config, logger *zap.Logger) (*Consumer, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	cfg.applyDefaults()
	return &Consumer{js: js, cfg: cfg, dispatcher: d, logger: logger}, nil
}

// Run ensures the stream and durable consumer exist, then handles messages until
// ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", c.cfg.Stream, err)
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.cfg.Subject,
		MaxDeliver:    c.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.cfg.Durable, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.Handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	c.logger.Info("CDC consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("subject", c.cfg.Subject),
		zap.String("durable", c.cfg.Durable),
	)

	<-ctx.Done()
	cc.Drain()
	c.logger.Info("CDC consumer stopped")
	return nil
}

// Handle dispatches one message. An unparseable payload is terminated, a batch
// with retryable failures is redelivered after the nak delay, anything else is acked.
func (c *Consumer) Handle(ctx context.Context, msg Msg) {
	ctx, log := logger.With(ctx, c.logger, zap.String("subject", msg.Subject()))

	events, err := stream.DecodePayload(msg.Data())
	if err != nil {
		log.Error("Dropping unparseable CDC message", zap.Error(err))
		if err := msg.Term(); err != nil {
			log.Warn("Term failed", zap.Error(err))
		}
		return
	}
	for i := range events {
		events[i] = events[i].WithSourceRef(msg.Subject())
	}

	report, err := c.dispatcher.Dispatch(ctx, events)
	if errors.Is(err, domain.ErrRedeliver) {
		log.Warn("Redelivering CDC message",
			zap.String("batch_id", report.BatchID),
			zap.Strings("sequences", report.RetryableSequences()),
			zap.Duration("delay", c.cfg.NakDelay),
		)
		if err := msg.NakWithDelay(c.cfg.NakDelay); err != nil {
			log.Warn("Nak failed", zap.Error(err))
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Warn("Ack failed", zap.String("batch_id", report.BatchID), zap.Error(err))
	}
}
