package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_transitions_total",
			Help: "Total reservation state transitions",
		},
		[]string{"from", "to"},
	)

	bookingConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Bookings rejected because the slot was taken",
		},
		[]string{"resource_id"},
	)

	tokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_verifications_total",
			Help: "Access token verification results",
		},
		[]string{"result"},
	)

	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Gate decisions per token type and deny reason",
		},
		[]string{"token_type", "granted", "reason"},
	)

	deviceCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "device_command_duration_seconds",
			Help:    "Duration of device command dispatches",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"command", "status"},
	)

	paymentEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_events_total",
			Help: "Processed payment gateway events",
		},
		[]string{"event", "outcome"},
	)
)

// TrackTransition records a reservation state transition. An empty from
// value marks a freshly created reservation.
func TrackTransition(from, to string) {
	if from == "" {
		from = "new"
	}
	reservationTransitions.WithLabelValues(from, to).Inc()
}

func TrackBookingConflict(resourceID string) {
	bookingConflicts.WithLabelValues(resourceID).Inc()
}

func TrackTokenVerification(result string) {
	tokenVerifications.WithLabelValues(result).Inc()
}

func TrackAccessDecision(tokenType string, granted bool, reason string) {
	grantedLabel := "false"
	if granted {
		grantedLabel = "true"
		reason = "ok"
	}
	accessDecisions.WithLabelValues(tokenType, grantedLabel, reason).Inc()
}

func TrackDeviceCommand(command string, ok bool, duration time.Duration) {
	status := "error"
	if ok {
		status = "ok"
	}
	deviceCommandDuration.WithLabelValues(command, status).Observe(duration.Seconds())
}

func TrackPaymentEvent(event, outcome string) {
	paymentEvents.WithLabelValues(event, outcome).Inc()
}
