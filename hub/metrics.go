package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "active",
		Subsystem: "sessions",
		Help:      "Number of registered sessions.",
	})

	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "created_total",
		Subsystem: "sessions",
		Help:      "Sessions created since start.",
	})

	sessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "expired_total",
		Subsystem: "sessions",
		Help:      "Sessions removed by the sweeper.",
	})
)

func init() {
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(sessionsCreated)
	prometheus.MustRegister(sessionsExpired)
}
