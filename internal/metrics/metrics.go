package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signal_ticks_total", Help: "Scheduler ticks completed"},
	)
	TickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "signal_tick_seconds", Help: "Wall time of one scheduler tick", Buckets: prometheus.DefBuckets},
	)
	PriceFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_price_fetch_failures_total", Help: "Failed price fetches"},
		[]string{"pair"},
	)
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_events_total", Help: "Lifecycle and recap events emitted"},
		[]string{"kind"},
	)
	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_notify_failures_total", Help: "Notifications that could not be delivered"},
		[]string{"kind"},
	)
	ClosuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signal_closures_total", Help: "Closed signals by outcome"},
		[]string{"outcome"},
	)
	ActiveSignals = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "signal_active", Help: "Signals currently tracked"},
	)
	InvariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signal_invariant_violations_total", Help: "Evaluated states rejected as illegal transitions"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, TickSeconds, PriceFetchFailures, EventsTotal,
		NotifyFailures, ClosuresTotal, ActiveSignals, InvariantViolations,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
