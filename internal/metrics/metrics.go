package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_rooms_active",
		Help: "Number of live collaboration rooms on this instance.",
	})

	ParticipantsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_participants_active",
		Help: "Number of participants tracked on this instance, grace remnants included.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_events_total",
		Help: "Inbound client events processed, by event type.",
	}, []string{"type"})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_broadcasts_total",
		Help: "Messages fanned out to room peers.",
	})

	PermissionDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_permission_denied_total",
		Help: "Role-gated actions refused.",
	})

	ValidationErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_validation_errors_total",
		Help: "Inbound events rejected as malformed.",
	})

	ThrottledCursorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_throttled_cursors_total",
		Help: "Cursor updates coalesced by the throttle instead of broadcast.",
	})
)
