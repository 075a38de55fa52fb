package obs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics groups Prometheus collectors for HTTP observability.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers and returns HTTP metrics collectors.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}
	} else {
		sort.Float64s(buckets)
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	m.ReqTotal = registerCounterVec(reg, m.ReqTotal)
	m.ReqDur = registerHistogramVec(reg, m.ReqDur)
	m.InFlight = registerGauge(reg, m.InFlight)
	return m
}

var (
	domainOnce sync.Once

	// CheckoutSubmitTotal counts order submission outcomes.
	CheckoutSubmitTotal *prometheus.CounterVec
	// VoucherResolveTotal counts voucher resolution outcomes per slot.
	VoucherResolveTotal *prometheus.CounterVec
	// CheckoutSessionsActive tracks live checkout sessions.
	CheckoutSessionsActive prometheus.Gauge
	// CartCleanupTotal counts best-effort cart item removal outcomes.
	CartCleanupTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers checkout domain collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutSubmitTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submit_total",
			Help:      "Count of order submission outcomes.",
		}, []string{"method", "result"}))
		VoucherResolveTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_resolve_total",
			Help:      "Count of voucher resolution outcomes per slot.",
		}, []string{"slot", "result"}))
		CheckoutSessionsActive = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_active",
			Help:      "Number of live checkout sessions.",
		}))
		CartCleanupTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_cleanup_total",
			Help:      "Count of best-effort cart item removal outcomes.",
		}, []string{"result"}))
	})
}

// ObserveSubmit records an order submission outcome. Safe to call before
// domain metrics are registered.
func ObserveSubmit(method, result string) {
	if CheckoutSubmitTotal != nil {
		CheckoutSubmitTotal.WithLabelValues(method, result).Inc()
	}
}

// ObserveVoucherResolve records a voucher resolution outcome per slot.
func ObserveVoucherResolve(slot, result string) {
	if VoucherResolveTotal != nil {
		VoucherResolveTotal.WithLabelValues(slot, result).Inc()
	}
}

// SetSessionsActive updates the live session gauge.
func SetSessionsActive(n float64) {
	if CheckoutSessionsActive != nil {
		CheckoutSessionsActive.Set(n)
	}
}

// ObserveCartCleanup records a cart removal outcome.
func ObserveCartCleanup(result string) {
	if CartCleanupTotal != nil {
		CartCleanupTotal.WithLabelValues(result).Inc()
	}
}

// ParseBucketsCSV converts a comma-separated list of bucket boundaries
// (milliseconds) into floats, skipping anything unparseable.
func ParseBucketsCSV(csv string) []float64 {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register counter: %w", err))
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register histogram: %w", err))
	}
	return h
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) prometheus.Gauge {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register gauge: %w", err))
	}
	return g
}
