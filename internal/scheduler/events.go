package scheduler

import (
	"time"

	"traingrid/pkg/constants"
)

// EventType scheduler event kinds
type EventType string

const (
	EventWorkerRegistered   EventType = "worker_registered"
	EventWorkerUnregistered EventType = "worker_unregistered"
	EventWorkerEvicted      EventType = "worker_evicted"
	EventJobSubmitted       EventType = "job_submitted"
	EventJobStatusChanged   EventType = "job_status_changed"
	EventJobOrphaned        EventType = "job_orphaned"
)

// Event is a notification emitted after a state change commits. Events are
// delivered outside the scheduler lock and carry copies only.
type Event struct {
	Type     EventType           `json:"type"`
	JobID    string              `json:"job_id,omitempty"`
	WorkerID string              `json:"worker_id,omitempty"`
	Status   constants.JobStatus `json:"status,omitempty"`
	Message  string              `json:"message,omitempty"`
	Time     time.Time           `json:"time"`
}

// Notifier receives scheduler events. Implementations must not call back
// into the scheduler synchronously.
type Notifier interface {
	Notify(Event)
}
