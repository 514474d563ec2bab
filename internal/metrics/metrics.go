// Package metrics exposes operator counters and score gauges to Prometheus.
//
// Registers:
//
//	liqoracle_cycles_total
//	liqoracle_cycle_errors_total
//	liqoracle_cycle_duration_seconds
//	liqoracle_fetch_errors_total{pool}
//	liqoracle_session_resets_total{pool}
//	liqoracle_alerts_sent_total
//	liqoracle_score{pool,component}
//	go_* and process_* system metrics
package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/liqoracle/internal/models"
)

const namespace = "liqoracle"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry      *prometheus.Registry
	cycles        prometheus.Counter
	cycleErrors   prometheus.Counter
	cycleDuration prometheus.Histogram
	fetchErrors   *prometheus.CounterVec
	sessionResets *prometheus.CounterVec
	alertsSent    prometheus.Counter
	score         *prometheus.GaugeVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Number of completed polling cycles",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Number of polling cycles that failed",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one polling cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Number of failed distribution fetches",
		}, []string{"pool"}),
		sessionResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Number of analyzer sessions restarted after a range change",
		}, []string{"pool"}),
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Number of pool alerts delivered",
		}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "score",
			Help:      "Latest scaled score per pool and component (10000 = 1.0)",
		}, []string{"pool", "component"}),
	}

	m.registry.MustRegister(
		m.cycles, m.cycleErrors, m.cycleDuration,
		m.fetchErrors, m.sessionResets, m.alertsSent, m.score,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	m.cycles.Inc()
	if err != nil {
		m.cycleErrors.Inc()
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) FetchError(poolID string) {
	m.fetchErrors.WithLabelValues(poolID).Inc()
}

func (m *Metrics) SessionReset(poolID string) {
	m.sessionResets.WithLabelValues(poolID).Inc()
}

func (m *Metrics) AlertsSent(n int) {
	m.alertsSent.Add(float64(n))
}

// ObserveResult publishes the components of one analyzer result. An
// undefined transition is exported as -1.
func (m *Metrics) ObserveResult(poolID string, r models.Result) {
	set := func(component string, v *big.Int) {
		if v == nil {
			return
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		m.score.WithLabelValues(poolID, component).Set(f)
	}
	set("transition", r.Transition)
	set("overall", r.Volatility.Overall)
	set("transition_volatility", r.Volatility.Transition)
	set("per_tick", r.Volatility.PerTick)
	set("entropy", r.Volatility.Entropy)
	set("temporal", r.Volatility.Temporal)
	set("aggregate", r.Volatility.Aggregate)
	set("concentration", r.Structure.Concentration)
	set("depth", r.Structure.Depth)
	set("spread", r.Structure.Spread)
}
