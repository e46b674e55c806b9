package usage

import "github.com/prometheus/client_golang/prometheus"

var countFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fieldwork",
	Subsystem: "usage",
	Name:      "count_failures_total",
	Help:      "Usage counts that failed, by category and failure policy.",
}, []string{"category", "policy"})

func init() {
	prometheus.MustRegister(countFailures)
}
