package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rollcall"

var (
	// Reconciliations counts committed loads by outcome: locked, partial, open or degraded.
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Attendance reconciliations by outcome.",
	}, []string{"outcome"})

	// StaleResponses counts load results dropped because a newer selection superseded them.
	StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_responses_total",
		Help:      "Load results discarded because the selection changed.",
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Attendance batch submissions by result.",
	}, []string{"result"})

	RosterCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roster_cache_total",
		Help:      "Roster cache lookups by result.",
	}, []string{"result"})

	SchoolRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "school_request_duration_seconds",
		Help:      "Latency of calls to the school backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	// BatchesSaved is counted by the reference school backend.
	BatchesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_saved_total",
		Help:      "Attendance batches upserted by the school backend.",
	})

	RecordsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_saved_total",
		Help:      "Attendance records upserted by the school backend.",
	})

	QueueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_events_total",
		Help:      "Queue events handled by the worker.",
	}, []string{"type", "result"})
)

// Outcome names the lock outcome of a reconciliation.
func Outcome(locked bool, notice string, degraded bool) string {
	switch {
	case degraded:
		return "degraded"
	case locked:
		return "locked"
	case notice != "":
		return "partial"
	}
	return "open"
}
