package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	restartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_supervisor_restarts_total",
			Help: "Number of server restarts initiated by the supervisor.",
		},
		[]string{"reason"},
	)

	healthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_supervisor_health_checks_total",
			Help: "Health probe outcomes.",
		},
		[]string{"status"},
	)

	childUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_supervisor_server_up",
			Help: "Whether a healthy server process is currently supervised.",
		},
	)

	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hearth_supervisor_state",
			Help: "Current lifecycle phase, 1 for the active phase and 0 for the rest.",
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(restartsTotal, healthChecksTotal, childUp, stateGauge)
}

// setStateGauge flips the phase gauge so exactly one label reads 1.
func setStateGauge(current Phase) {
	for _, p := range []Phase{PhaseStopped, PhaseStarting, PhaseRunning, PhaseRestarting, PhaseShuttingDown, PhaseFailed} {
		v := 0.0
		if p == current {
			v = 1.0
		}
		stateGauge.WithLabelValues(string(p)).Set(v)
	}
}
