package scanner

import "github.com/prometheus/client_golang/prometheus"

var pagesScanned = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "touchbot",
	Subsystem: "scanner",
	Name:      "pages_scanned_total",
	Help:      "Pages whose slots were enumerated.",
})

// RegisterMetrics registers the scanner metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(pagesScanned)
}
