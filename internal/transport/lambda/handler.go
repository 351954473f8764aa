// Package lambda adapts the dispatcher to a DynamoDB Streams Lambda trigger with
// partial batch responses enabled.
package lambda

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/stream"
	"github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/usecase/ingest"
)

// Dispatcher applies a batch of change events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []stream.Event) (ingest.Report, error)
}

// Handler processes one stream batch.
type Handler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{dispatcher: d, logger: logger}
}

// Handle decodes the raw invocation payload and dispatches it. Retryable events
// are reported as batch item failures by sequence number; terminal ones were
// already archived and are not retried. An unreadable envelope fails the whole
// invocation.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (events.DynamoDBEventResponse, error) {
	var fields []zap.Field
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields = append(fields, zap.String("aws_request_id", lc.AwsRequestID))
	}
	ctx, log := logger.With(ctx, h.logger, fields...)

	batch, err := stream.DecodeBatch(payload)
	if err != nil {
		log.Error("Unreadable stream batch", zap.Error(err))
		return events.DynamoDBEventResponse{}, err
	}

	report, err := h.dispatcher.Dispatch(ctx, batch)
	resp := events.DynamoDBEventResponse{BatchItemFailures: []events.DynamoDBBatchItemFailure{}}
	if err != nil && !errors.Is(err, domain.ErrRedeliver) {
		return resp, err
	}
	for _, seq := range report.RetryableSequences() {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{ItemIdentifier: seq})
	}

	log.Info("Stream batch processed",
		zap.String("batch_id", report.BatchID),
		zap.Int("records", len(batch)),
		zap.Int("processed", report.Processed),
		zap.Int("ignored", report.Ignored),
		zap.Int("failed", report.Failed),
		zap.Int("retry", len(resp.BatchItemFailures)),
		zap.Duration("duration", report.Duration),
	)
	return resp, nil
}
