package domain

import "time"

// Event types emitted on the signal bus.
const (
	EventOpportunityEvaluated = "opportunity_evaluated"
	EventLegStatusChanged     = "leg_status_changed"
	EventExecutionCompleted   = "execution_completed"
	EventWorkerHeartbeat      = "worker_heartbeat"
)

// Event is the envelope published for every structured event. Payload is
// JSON-marshalled by the emitter; delivery and transport beyond the bus are
// not this core's concern.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}
