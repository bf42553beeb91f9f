package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	cycles      *prometheus.CounterVec
	duration    prometheus.Histogram
	reachable   prometheus.Gauge
	candidates  prometheus.Gauge
	bestLatency prometheus.Gauge
	lastSuccess prometheus.Gauge
	publishes   *prometheus.CounterVec
	state       *prometheus.GaugeVec
}

func newMetrics(prom prometheus.Registerer) *metrics {
	m := &metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdnopt_cycles_total",
			Help: "optimization cycles by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdnopt_cycle_duration_seconds",
			Help:    "wall time of an optimization cycle",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		reachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cdnopt_reachable_addresses",
			Help: "addresses that answered in the last cycle",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cdnopt_candidate_addresses",
			Help: "addresses probed in the last cycle",
		}),
		bestLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cdnopt_best_latency_seconds",
			Help: "latency of the fastest address in the last cycle",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cdnopt_last_success_timestamp_seconds",
			Help: "unix time of the last successful cycle",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdnopt_dns_updates_total",
			Help: "DNS record updates by result",
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cdnopt_state",
			Help: "current optimizer state",
		}, []string{"state"}),
	}

	prom.MustRegister(m.cycles)
	prom.MustRegister(m.duration)
	prom.MustRegister(m.reachable)
	prom.MustRegister(m.candidates)
	prom.MustRegister(m.bestLatency)
	prom.MustRegister(m.lastSuccess)
	prom.MustRegister(m.publishes)
	prom.MustRegister(m.state)

	return m
}

func (m *metrics) setState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}
