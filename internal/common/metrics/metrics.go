// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArtifactsReviewed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthcard_artifacts_reviewed_total",
			Help: "Total number of artifact review decisions",
		},
		[]string{"kind", "decision"},
	)

	LineagesLocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthcard_lineages_locked_total",
			Help: "Total number of lineages frozen at the attempt ceiling",
		},
		[]string{"kind"},
	)

	ApplicationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthcard_application_transitions_total",
			Help: "Total number of application status transitions",
		},
		[]string{"from", "to"},
	)

	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthcard_orientation_bookings_total",
			Help: "Total number of orientation bookings created",
		},
	)

	BookingsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthcard_orientation_bookings_denied_total",
			Help: "Total number of denied booking attempts",
		},
		[]string{"reason"},
	)

	NoShowsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthcard_orientation_no_shows_total",
			Help: "Total number of bookings swept to missed",
		},
	)

	HealthCardsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthcard_cards_issued_total",
			Help: "Total number of health cards issued",
		},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "healthcard_worker_job_duration_seconds",
			Help: "Duration of worker job processing in seconds",
		},
		[]string{"task_type"},
	)
)
