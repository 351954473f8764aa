package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/bootstrap"
	"github.com/kailas-cloud/indexsync/internal/config"
	logpkg "github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	lambdaTransport "github.com/kailas-cloud/indexsync/internal/transport/lambda"
	"github.com/kailas-cloud/indexsync/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, "streamsync", cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting indexsync stream handler",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("tenants", len(cfg.Tenants)),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("dead_letter_driver", cfg.DeadLetter.Driver),
	)

	metrics.RegisterPipelineMetrics()
	metrics.RegisterBuildInfo(version.Version, version.Commit, "streamsync")

	// Built once per cold start; warm invocations reuse clients and the index cache.
	pipeline, err := bootstrap.NewPipeline(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	dispatcher, err := pipeline.Dispatcher("lambda")
	if err != nil {
		logger.Fatal("Failed to create dispatcher", zap.Error(err))
	}
	defer dispatcher.Close()

	lambda.Start(lambdaTransport.NewHandler(dispatcher, logger).Handle)
}
