package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clothesfashion/backend-checkout/internal/cart"
	"github.com/clothesfashion/backend-checkout/internal/cleanup"
	"github.com/clothesfashion/backend-checkout/internal/config"
	"github.com/clothesfashion/backend-checkout/internal/obs"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	cartBreaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRate, cfg.BreakerOpenFor).
		WithTarget("cart-api").
		WithLogger(logger)
	cartHTTP := resilience.NewHTTPClient(
		&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cartBreaker, cfg.RetryMaxAttempts, cfg.RetryBase, cfg.OutboundTimeout, cfg.RetryJitterPercent,
	)
	cartHTTP.Target = "cart-api"
	cartHTTP.Logger = logger
	cartClient := cart.NewClient(cfg.CartAPIBaseURL, cartHTTP)

	concurrency := envInt("CLEANUP_WORKER_CONCURRENCY", 5)
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisOpts.Addr,
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{cfg.CleanupQueue: 1},
			Logger:      asynqLogger{logger: logger},
		},
	)

	worker := cleanup.Worker{Carts: cartClient, Logger: logger}
	mux := asynq.NewServeMux()
	mux.HandleFunc(cleanup.TypeRemoveCartItem, worker.HandleRemoveCartItem)

	logger.Info().
		Str("queue", cfg.CleanupQueue).
		Int("concurrency", concurrency).
		Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
