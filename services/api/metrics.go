package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"shutdownd/pkg/state"
	"shutdownd/services/registry"
)

type metrics struct {
	heartbeats       *prometheus.CounterVec
	shutdownRequests *prometheus.CounterVec
	evictions        prometheus.Counter
	computers        *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shutdownd_heartbeats_total",
			Help: "Heartbeats received, by state reported to the agent.",
		}, []string{"state"}),
		shutdownRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shutdownd_shutdown_requests_total",
			Help: "Operator shutdown requests, by scope and result.",
		}, []string{"scope", "result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shutdownd_evictions_total",
			Help: "Computers evicted after missing heartbeats.",
		}),
		computers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shutdownd_computers",
			Help: "Registered computers by state, as of the last status sweep.",
		}, []string{"state"}),
	}

	for _, c := range []prometheus.Collector{
		m.heartbeats,
		m.shutdownRequests,
		m.evictions,
		m.computers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeSnapshot(snap registry.Snapshot) {
	counts := map[state.State]int{
		state.Online:            0,
		state.ShutdownRequested: 0,
		state.ShutdownAccepted:  0,
	}
	for _, computers := range snap {
		for _, status := range computers {
			counts[status.State]++
		}
	}
	for st, n := range counts {
		m.computers.WithLabelValues(st.String()).Set(float64(n))
	}
}
