package scheduler

import (
	"fmt"

	"traingrid/pkg/constants"
)

// validTransitions is the job lifecycle automaton. Terminal states have no
// outgoing edges; cancellation is legal from any non-terminal state.
var validTransitions = map[constants.JobStatus][]constants.JobStatus{
	constants.JobStatusPending: {
		constants.JobStatusRunning,
		constants.JobStatusFailed,
		constants.JobStatusCancelled,
	},
	constants.JobStatusRunning: {
		constants.JobStatusAggregating,
		constants.JobStatusCompleted,
		constants.JobStatusFailed,
		constants.JobStatusCancelled,
	},
	constants.JobStatusAggregating: {
		constants.JobStatusCompleted,
		constants.JobStatusFailed,
		constants.JobStatusCancelled,
	},
}

// CanTransition reports whether the lifecycle automaton permits from -> to.
func CanTransition(from, to constants.JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseJobStatus validates a caller-supplied status string.
func ParseJobStatus(s string) (constants.JobStatus, error) {
	switch status := constants.JobStatus(s); status {
	case constants.JobStatusPending, constants.JobStatusRunning,
		constants.JobStatusAggregating, constants.JobStatusCompleted,
		constants.JobStatusFailed, constants.JobStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
}
