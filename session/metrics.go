package session

import "github.com/prometheus/client_golang/prometheus"

var (
	actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "actions_total",
		Subsystem: "session",
		Help:      "In-session actions handled, labelled by message type and result.",
	}, []string{"type", "result"})

	droppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "dropped_frames_total",
		Subsystem: "session",
		Help:      "Outbound frames dropped because a member's send buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(actions)
	prometheus.MustRegister(droppedFrames)
}
