package entitlement

import (
	"github.com/mbd888/fieldwork/internal/plans"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldwork",
		Subsystem: "entitlement",
		Name:      "checks_total",
		Help:      "Entitlement checks by category and verdict reason.",
	}, []string{"category", "reason"})

	checkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fieldwork",
		Subsystem: "entitlement",
		Name:      "check_duration_seconds",
		Help:      "Duration of entitlement checks in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

func init() {
	prometheus.MustRegister(checksTotal, checkDuration)
}

// categoryLabel bounds label cardinality to the known categories.
func categoryLabel(c plans.Category) string {
	if c.Valid() {
		return string(c)
	}
	return "unknown"
}
