package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce     sync.Once
	transitionTotal *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
)

func initMetrics() {
	transitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_transitions_total",
		Help: "Circuit breaker state transitions per target.",
	}, []string{"target", "from_state", "to_state"})
	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "breaker_state",
		Help: "Current breaker state per target (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	for _, c := range []prometheus.Collector{transitionTotal, breakerState} {
		if err := prometheus.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := are.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					transitionTotal = existing
				case *prometheus.GaugeVec:
					breakerState = existing
				}
				continue
			}
		}
	}
}

func recordTransition(target string, from, to State) {
	metricsOnce.Do(initMetrics)
	transitionTotal.WithLabelValues(target, from.String(), to.String()).Inc()
	breakerState.WithLabelValues(target).Set(float64(to))
}
