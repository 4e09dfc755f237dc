package sim

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports circuit activity. A nil *Metrics records nothing.
type Metrics struct {
	Ticks        prometheus.Counter
	SettlePasses prometheus.Histogram
	Transfers    *prometheus.CounterVec
}

// NewMetrics creates the circuit collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateware",
			Subsystem: "sim",
			Name:      "ticks_total",
			Help:      "Clock ticks simulated.",
		}),
		SettlePasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateware",
			Subsystem: "sim",
			Name:      "settle_passes",
			Help:      "Evaluation passes needed for combinational logic to settle.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateware",
			Subsystem: "stream",
			Name:      "transfers_total",
			Help:      "Beats transferred (valid and ready) per probed endpoint.",
		}, []string{"endpoint"}),
	}
	for _, col := range []prometheus.Collector{m.Ticks, m.SettlePasses, m.Transfers} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Transfer counts one beat on the named endpoint.
func (m *Metrics) Transfer(endpoint string) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

func (m *Metrics) observePasses(n int) {
	if m == nil {
		return
	}
	m.SettlePasses.Observe(float64(n))
}
