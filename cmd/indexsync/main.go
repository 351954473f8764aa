package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/bootstrap"
	"github.com/kailas-cloud/indexsync/internal/config"
	"github.com/kailas-cloud/indexsync/internal/engine/elastic"
	logpkg "github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	chiTransport "github.com/kailas-cloud/indexsync/internal/transport/chi"
	"github.com/kailas-cloud/indexsync/internal/transport/natsfeed"
	"github.com/kailas-cloud/indexsync/internal/version"
)

const engineReadinessTimeout = 10 * time.Second

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, "indexsync", cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting indexsync API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("stage", cfg.Stage),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("tenants", len(cfg.Tenants)),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("auth_mode", cfg.Auth.Mode),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterBuildInfo(version.Version, version.Commit, "indexsync")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := elastic.NewStore(elastic.Config{
		Username:   cfg.Engine.Username,
		Password:   cfg.Engine.Password,
		APIKey:     cfg.Engine.APIKey,
		Refresh:    cfg.Engine.Refresh,
		MaxRetries: cfg.Engine.MaxRetries,
	})
	pipeline, err := bootstrap.NewPipelineWithEngine(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	// An unreachable endpoint only affects its tenants; start anyway.
	for _, ep := range pipeline.Router.Endpoints() {
		if err := store.WaitForReady(ctx, ep, engineReadinessTimeout); err != nil {
			logger.Warn("Engine endpoint not ready", zap.String("endpoint", ep.String()), zap.Error(err))
		}
	}

	if cfg.Engine.WarmOnStart {
		if err := pipeline.Warm(ctx); err != nil {
			logger.Warn("Index warm-up incomplete", zap.Error(err))
		} else {
			logger.Info("Indices warmed", zap.String("stage", cfg.Stage))
		}
	}

	validator, err := bootstrap.NewValidator(cfg.Auth)
	if err != nil {
		logger.Fatal("Failed to build token validator", zap.Error(err))
	}

	server := chiTransport.NewServer(pipeline.Search(), pipeline.Health(), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware("/metrics", "/health"))
	r.Use(chiTransport.AuthMiddleware(validator))
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	consumerDone := make(chan struct{})
	if cfg.NATS.Enabled {
		go func() {
			defer close(consumerDone)
			runConsumer(ctx, cfg.NATS, pipeline, logger)
		}()
	} else {
		close(consumerDone)
	}

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("CDC consumer did not drain in time")
	}

	logger.Info("Server stopped gracefully")
}

// runConsumer feeds the JetStream change feed into a dispatcher until ctx ends.
func runConsumer(ctx context.Context, cfg config.NATSConfig, pipeline *bootstrap.Pipeline, logger *zap.Logger) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("indexsync"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		logger.Error("Failed to connect to NATS", zap.String("url", cfg.URL), zap.Error(err))
		return
	}
	defer nc.Close()

	dispatcher, err := pipeline.Dispatcher("nats")
	if err != nil {
		logger.Error("Failed to create dispatcher", zap.Error(err))
		return
	}
	defer dispatcher.Close()

	consumer, err := natsfeed.New(nc, dispatcher, natsfeed.Config{
		Stream:     cfg.Stream,
		Subject:    cfg.Subject,
		Durable:    cfg.Durable,
		NakDelay:   time.Duration(cfg.NakDelaySec) * time.Second,
		MaxDeliver: cfg.MaxDeliver,
	}, logger)
	if err != nil {
		logger.Error("Failed to create CDC consumer", zap.Error(err))
		return
	}
	if err := consumer.Run(ctx); err != nil {
		logger.Error("CDC consumer failed", zap.Error(err))
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one per request. The query string is left out,
			// search terms are user content.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
