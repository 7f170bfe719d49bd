package recorder

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes recorder activity to Prometheus.
type Metrics struct {
	EventsSubmitted prometheus.Counter
	BatchesFlushed  prometheus.Counter
	Commands        *prometheus.CounterVec
	CommandErrors   prometheus.Counter
	QueueDepth      prometheus.Gauge
}

// NewMetrics creates the recorder metrics and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "touchbot",
			Subsystem: "recorder",
			Name:      "events_submitted_total",
			Help:      "Pointer events accepted by Submit.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "touchbot",
			Subsystem: "recorder",
			Name:      "batches_flushed_total",
			Help:      "Raw batches written to the event log.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "touchbot",
			Subsystem: "recorder",
			Name:      "commands_total",
			Help:      "Touch commands sent to the device by kind.",
		}, []string{"kind"}),
		CommandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "touchbot",
			Subsystem: "recorder",
			Name:      "command_errors_total",
			Help:      "Touch commands the device rejected.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "touchbot",
			Subsystem: "recorder",
			Name:      "queue_depth",
			Help:      "Events waiting to be drained.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsSubmitted, m.BatchesFlushed, m.Commands, m.CommandErrors, m.QueueDepth)
	}
	return m
}
