// Package metrics exposes Prometheus instrumentation for registry and
// coordinator activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_tokens_issued_total",
			Help: "Total attendance tokens issued per event",
		},
		[]string{"event_id"},
	)

	pairings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collectible_pairings_total",
			Help: "Total collectible pairings per event",
		},
		[]string{"event_id"},
	)

	attestations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attestations_recorded_total",
			Help: "Total attestations recorded",
		},
		[]string{"event_id", "kind"},
	)

	rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_rejections_total",
			Help: "Total rejected operations by reason",
		},
		[]string{"operation", "reason"},
	)

	activeEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_events_total",
			Help: "Current number of active events",
		},
	)

	treasuryBps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fee_split_treasury_bps",
			Help: "Treasury share of the pairing fee in basis points",
		},
	)
)

// TrackIssued counts one successful attendance token issuance.
func TrackIssued(eventID string) {
	tokensIssued.WithLabelValues(eventID).Inc()
}

// TrackPairing counts one successful collectible pairing.
func TrackPairing(eventID string) {
	pairings.WithLabelValues(eventID).Inc()
}

// TrackAttestation counts one recorded attestation. Kind is "attendance"
// or "upgrade".
func TrackAttestation(eventID, kind string) {
	attestations.WithLabelValues(eventID, kind).Inc()
}

// TrackRejection counts one rejected operation.
func TrackRejection(operation, reason string) {
	rejections.WithLabelValues(operation, reason).Inc()
}

// SetActiveEvents records the current number of active events.
func SetActiveEvents(n int) {
	activeEvents.Set(float64(n))
}

// SetTreasuryBps records the configured treasury share.
func SetTreasuryBps(bps uint64) {
	treasuryBps.Set(float64(bps))
}
