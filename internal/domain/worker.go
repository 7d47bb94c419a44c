package domain

import "time"

// WorkerStatus is the self-reported state of a browser worker process.
type WorkerStatus string

const (
	WorkerStandby    WorkerStatus = "standby"
	WorkerProcessing WorkerStatus = "processing"
	WorkerError      WorkerStatus = "error"
	WorkerCrashed    WorkerStatus = "crashed"
)

// Worker is a registry entry for one worker process. Workers are created on
// first heartbeat and never deleted, only aged out of active aggregation.
type Worker struct {
	ID            string    `json:"worker_id"`
	Type          string    `json:"type"`
	Status        WorkerStatus `json:"status"`
	CurrentTask   string    `json:"current_task,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// FleetHealth is the per-status count of workers heartbeated inside the
// freshness window, plus the count that fell outside it.
type FleetHealth struct {
	Active     int `json:"active"`
	Standby    int `json:"standby"`
	Processing int `json:"processing"`
	Errored    int `json:"errored"`
	Crashed    int `json:"crashed"`
	Stale      int `json:"stale"`
}
