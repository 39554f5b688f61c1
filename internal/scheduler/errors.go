package scheduler

import "errors"

// Error taxonomy for scheduler operations. Callers decide whether to retry,
// fail the job, or reassign; nothing here is fatal to the process.
var (
	// ErrInvalidInput malformed registration or claim request; not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownWorker the worker is not registered, usually a race between
	// eviction and a late request. Caller should re-register and retry.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrNotFound the referenced job or worker does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAssigned the job already has a worker bound to it.
	ErrAlreadyAssigned = errors.New("job already assigned")

	// ErrJobFullyAllocated a distributed job has all its ranks; benign,
	// the caller should stop polling.
	ErrJobFullyAllocated = errors.New("job fully allocated")

	// ErrInvalidTransition a status report attempted an illegal lifecycle
	// move, typically out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownStrategy the requested selection strategy does not exist.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInsufficientWorkers a multi-worker selection could not find enough
	// eligible workers; selection is all-or-nothing.
	ErrInsufficientWorkers = errors.New("insufficient eligible workers")
)
