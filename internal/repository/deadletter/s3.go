// Package deadletter archives change events that failed terminally.
package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/kailas-cloud/indexsync/internal/domain/stream"
)

// ObjectAPI is the subset of the S3 client the sink uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3 sink. Static keys are optional; without them the
// default credential chain applies.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3 stores one JSON object per dead letter.
type S3 struct {
	api    ObjectAPI
	bucket string
	prefix string
}

// NewS3 builds an S3 client from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("dead letter bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3WithAPI(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3WithAPI creates a sink over an existing client (tests, shared clients).
func NewS3WithAPI(api ObjectAPI, bucket, prefix string) *S3 {
	return &S3{api: api, bucket: bucket, prefix: prefix}
}

// Name implements ingest.DeadLetterSink.
func (s *S3) Name() string { return "s3" }

// Key returns the object key of a dead letter:
// <prefix>/<yyyy>/<mm>/<dd>/<tenant>/<batch>-<uuid>.json.
func (s *S3) Key(dl stream.DeadLetter) string {
	owner := dl.Outcome.Tenant
	if owner == "" {
		owner = "_unknown"
	}
	return path.Join(s.prefix, dl.FailedAt.Format("2006/01/02"), owner,
		dl.BatchID+"-"+uuid.NewString()+".json")
}

// Archive uploads dl as JSON.
func (s *S3) Archive(ctx context.Context, dl stream.DeadLetter) error {
	body, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	key := s.Key(dl)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"sequence": dl.Outcome.Sequence,
			"status":   string(dl.Outcome.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Fetch downloads an archived dead letter and returns its event, ready for replay.
func (s *S3) Fetch(ctx context.Context, key string) (stream.Event, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return stream.Event{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return stream.Event{}, fmt.Errorf("read %s: %w", key, err)
	}
	return Decode(data)
}

// Decode parses an archived dead letter and returns its event.
func Decode(data []byte) (stream.Event, error) {
	var env struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return stream.Event{}, fmt.Errorf("decode dead letter: %w", err)
	}
	return stream.DecodeRecord(env.Event), nil
}
