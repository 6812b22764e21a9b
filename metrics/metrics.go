// Package metrics defines the Prometheus collectors for the points
// engine. Collectors are registered on the default registry at init
// and exposed through the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GrantsTotal counts granted entries by kind.
var GrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "grants_total",
	Help:      "Total grant entries appended, by grant kind.",
}, []string{"kind"})

// ConsumptionsTotal counts consumption attempts by kind and outcome.
var ConsumptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "consumptions_total",
	Help:      "Total consumption attempts, by kind and outcome (accepted or declined).",
}, []string{"kind", "outcome"})

// ReversalsTotal counts reversed entries.
var ReversalsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "reversals_total",
	Help:      "Total entries flagged reversed.",
})

// PointsExpiredTotal counts points removed by expiration.
var PointsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "points",
	Subsystem: "ledger",
	Name:      "points_expired_total",
	Help:      "Total points removed by expiration entries.",
})

// SweepDuration tracks how long full expiration sweeps take.
var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "points",
	Subsystem: "sweep",
	Name:      "duration_seconds",
	Help:      "Duration of full expiration sweeps across all users.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
})

// SweepUsers tracks how many users each sweep visited.
var SweepUsers = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "points",
	Subsystem: "sweep",
	Name:      "users",
	Help:      "Users visited per expiration sweep.",
	Buckets:   []float64{1, 10, 100, 1000, 10000, 100000},
})
