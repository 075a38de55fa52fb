package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clothesfashion/backend-checkout/internal/address"
	"github.com/clothesfashion/backend-checkout/internal/auth"
	"github.com/clothesfashion/backend-checkout/internal/cart"
	"github.com/clothesfashion/backend-checkout/internal/checkout"
	"github.com/clothesfashion/backend-checkout/internal/cleanup"
	"github.com/clothesfashion/backend-checkout/internal/config"
	"github.com/clothesfashion/backend-checkout/internal/events"
	"github.com/clothesfashion/backend-checkout/internal/health"
	"github.com/clothesfashion/backend-checkout/internal/lock"
	"github.com/clothesfashion/backend-checkout/internal/obs"
	"github.com/clothesfashion/backend-checkout/internal/payment"
	"github.com/clothesfashion/backend-checkout/internal/pricing"
	"github.com/clothesfashion/backend-checkout/internal/resilience"
	"github.com/clothesfashion/backend-checkout/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "checkout")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "checkout-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier}

	outboundTransport := otelhttp.NewTransport(http.DefaultTransport)
	outbound := func(target string) *resilience.HTTPClient {
		c := resilience.NewHTTPClient(
			&http.Client{Transport: outboundTransport},
			resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRate, cfg.BreakerOpenFor).WithTarget(target).WithLogger(logger),
			cfg.RetryMaxAttempts,
			cfg.RetryBase,
			cfg.OutboundTimeout,
			cfg.RetryJitterPercent,
		)
		c.Target = target
		c.Logger = logger
		return c
	}

	cartClient := cart.NewClient(cfg.CartAPIBaseURL, outbound("cart-api"))
	addressClient := address.NewClient(cfg.AddressAPIBaseURL, outbound("address-api"))
	voucherClient := voucher.NewClient(cfg.DiscountAPIBaseURL, outbound("discount-api"))
	paymentClient := payment.NewClient(cfg.PaymentAPIBaseURL, outbound("payment-api"))

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	bus := &events.Bus{
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
		Logger:    logger,
	}

	sessions := checkout.NewStore(cfg.SessionTTL)
	go sessions.Sweep(ctx, time.Minute)

	checkoutSvc := &checkout.Service{
		Carts:     cartClient,
		Addresses: addressClient,
		Vouchers:  voucherClient,
		Gateway:   paymentClient,
		Sessions:  sessions,
		Locker:    lock.Locker{R: redisClient},
		Cleanup: cleanup.Enqueuer{
			Client:   asynqClient,
			Queue:    cfg.CleanupQueue,
			MaxRetry: cfg.CleanupMaxRetry,
			Logger:   logger,
		},
		Bus: bus,
		Fees: pricing.FeeTable{
			BaseFee:      cfg.ShippingBaseFee,
			FreeUnits:    cfg.ShippingFreeUnits,
			PerExtraUnit: cfg.ShippingPerExtraUnit,
		},
		Currency:      cfg.CurrencyCode,
		Country:       cfg.DefaultCountryCode,
		SubmitTimeout: cfg.SubmitTimeout,
		SubmitLockTTL: cfg.SubmitLockTTL,
		Logger:        logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validator.New()}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{redis: redisClient},
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/checkout", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			checkoutHandler.Routes(c)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis *redis.Client
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int64) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
