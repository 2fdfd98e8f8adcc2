package metricsx

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	slotValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backflowhq",
			Name:      "slot_validations_total",
			Help:      "Count of slot validations by outcome.",
		},
		[]string{"outcome"},
	)

	reschedules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backflowhq",
			Name:      "reschedules_total",
			Help:      "Count of reschedule requests by outcome.",
		},
		[]string{"outcome"},
	)

	conflictsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "backflowhq",
			Name:      "conflicts_detected_total",
			Help:      "Count of conflicts found by the conflict report scan.",
		},
	)

	resolutionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backflowhq",
			Name:      "conflict_resolutions_total",
			Help:      "Count of conflict resolution actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "backflowhq",
			Name:      "notifications_total",
			Help:      "Count of customer notifications by channel and status.",
		},
		[]string{"channel", "status"},
	)
)

// Register registers metrics with the default registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(slotValidations, reschedules, conflictsDetected, resolutionsApplied, notifications)
	})
}

// Handler exposes the default registry for a /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncSlotValidation(outcome string) {
	slotValidations.WithLabelValues(outcome).Inc()
}

func IncReschedule(outcome string) {
	reschedules.WithLabelValues(outcome).Inc()
}

func AddConflictsDetected(n int) {
	conflictsDetected.Add(float64(n))
}

func IncResolution(action, outcome string) {
	resolutionsApplied.WithLabelValues(action, outcome).Inc()
}

func IncNotification(channel, status string) {
	notifications.WithLabelValues(channel, status).Inc()
}
