package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	// Collaborator base URLs.
	CartAPIBaseURL     string
	AddressAPIBaseURL  string
	DiscountAPIBaseURL string
	PaymentAPIBaseURL  string

	CurrencyCode       string
	DefaultCountryCode string

	// Shipping fee tiers, whole currency units.
	ShippingBaseFee      int64
	ShippingFreeUnits    int
	ShippingPerExtraUnit int64

	SessionTTL     time.Duration
	SubmitTimeout  time.Duration
	SubmitLockTTL  time.Duration
	IdempotencyTTL time.Duration

	// Outbound HTTP resilience.
	OutboundTimeout    time.Duration
	RetryMaxAttempts   int
	RetryBase          time.Duration
	RetryJitterPercent float64
	BreakerMinRequests int
	BreakerFailureRate float64
	BreakerOpenFor     time.Duration

	CleanupQueue    string
	CleanupMaxRetry int
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CartAPIBaseURL:     strings.TrimRight(k.String("CART_API_BASE_URL"), "/"),
		AddressAPIBaseURL:  strings.TrimRight(k.String("ADDRESS_API_BASE_URL"), "/"),
		DiscountAPIBaseURL: strings.TrimRight(k.String("DISCOUNT_API_BASE_URL"), "/"),
		PaymentAPIBaseURL:  strings.TrimRight(k.String("PAYMENT_API_BASE_URL"), "/"),

		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "PHP"),
		DefaultCountryCode: valueOrDefault(k.String("DEFAULT_COUNTRY_CODE"), "PH"),

		ShippingBaseFee:      parseInt64(k.String("SHIPPING_BASE_FEE"), 40),
		ShippingFreeUnits:    parseInt(k.String("SHIPPING_FREE_UNITS"), 3),
		ShippingPerExtraUnit: parseInt64(k.String("SHIPPING_PER_EXTRA_UNIT"), 10),

		SessionTTL:     parseDuration(k.String("CHECKOUT_SESSION_TTL"), "2h"),
		SubmitTimeout:  parseDuration(k.String("SUBMIT_TIMEOUT"), "20s"),
		SubmitLockTTL:  parseDuration(k.String("SUBMIT_LOCK_TTL"), "30s"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryJitterPercent: parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		BreakerMinRequests: parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRate: parseFloat(k.String("BREAKER_FAILURE_RATE"), 0.5),
		BreakerOpenFor:     parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		CleanupQueue:    valueOrDefault(k.String("CLEANUP_QUEUE"), "cleanup"),
		CleanupMaxRetry: parseInt(k.String("CLEANUP_MAX_RETRY"), 5),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	for _, required := range []struct{ key, value string }{
		{"CART_API_BASE_URL", cfg.CartAPIBaseURL},
		{"ADDRESS_API_BASE_URL", cfg.AddressAPIBaseURL},
		{"DISCOUNT_API_BASE_URL", cfg.DiscountAPIBaseURL},
		{"PAYMENT_API_BASE_URL", cfg.PaymentAPIBaseURL},
	} {
		if required.value == "" {
			return nil, fmt.Errorf("%s is required", required.key)
		}
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// LoadForTests overrides environment variables for the duration of a Load call.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return fallback
}

func parseInt64(value string, fallback int64) int64 {
	if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
