package probe

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the probe instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	probes   *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdnopt_probes_total",
			Help: "Latency probes by outcome",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cdnopt_probes_in_flight",
			Help: "Probes currently waiting for a reply",
		}),
	}

	reg.MustRegister(m.probes)
	reg.MustRegister(m.inFlight)

	return m
}

func (m *Metrics) observe(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.probes.WithLabelValues("ok").Inc()
	} else {
		m.probes.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) inflight(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}
