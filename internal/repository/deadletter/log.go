package deadletter

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain/stream"
)

// Log writes dead letters to the logger. Used when no bucket is configured.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log-only sink.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

// Name implements ingest.DeadLetterSink.
func (l *Log) Name() string { return "log" }

// Archive logs the full dead letter at error level.
func (l *Log) Archive(_ context.Context, dl stream.DeadLetter) error {
	event, err := json.Marshal(dl.Event)
	if err != nil {
		return err
	}
	l.logger.Error("Dead letter",
		zap.String("batch_id", dl.BatchID),
		zap.String("tenant", dl.Outcome.Tenant),
		zap.String("sequence", dl.Outcome.Sequence),
		zap.String("error", dl.Error),
		zap.Time("failed_at", dl.FailedAt),
		zap.ByteString("event", event),
	)
	return nil
}
