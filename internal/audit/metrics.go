package audit

import "github.com/prometheus/client_golang/prometheus"

var (
	overLimit = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fieldwork",
		Subsystem: "audit",
		Name:      "over_limit",
		Help:      "Tenants over their cap in the last audit run, by category.",
	}, []string{"category"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fieldwork",
		Subsystem: "audit",
		Name:      "run_duration_seconds",
		Help:      "Duration of audit runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	runErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldwork",
		Subsystem: "audit",
		Name:      "errors_total",
		Help:      "Total audit read errors.",
	})
)

func init() {
	prometheus.MustRegister(overLimit, runDuration, runErrors)
}
