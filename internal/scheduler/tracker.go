package scheduler

import (
	"fmt"
	"sort"
)

// tracker is the single source of truth for which worker runs which
// single-worker job. Worker load counters are derived from it, never the
// other way around. Like the registry it is guarded by the Scheduler lock.
type tracker struct {
	byJob    map[string]string // job_id -> worker_id
	orphaned map[string]bool   // bindings whose worker record vanished
}

func newTracker() *tracker {
	return &tracker{
		byJob:    make(map[string]string),
		orphaned: make(map[string]bool),
	}
}

// assign binds a job to a registered worker and bumps the worker's load.
// A job that is already bound is rejected: re-assignment must go through an
// explicit complete/release first.
func (t *tracker) assign(reg *registry, jobID, workerID string) error {
	worker, ok := reg.get(workerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	if bound, exists := t.byJob[jobID]; exists {
		return fmt.Errorf("%w: job %s is bound to worker %s", ErrAlreadyAssigned, jobID, bound)
	}

	t.byJob[jobID] = workerID
	worker.ActiveJobs++
	reg.deriveStatus(worker)
	return nil
}

// complete releases the binding, decrements the worker's load (floored at
// zero) and credits the completion. Idempotent: a job with no binding is a
// no-op.
func (t *tracker) complete(reg *registry, jobID string) (string, bool) {
	workerID, ok := t.byJob[jobID]
	if !ok {
		return "", false
	}
	delete(t.byJob, jobID)

	// An orphaned binding's load went down with the vanished record. Any
	// record now under the same ID is a restarted worker that never ran
	// this job, so it gets neither the decrement nor the credit.
	if t.orphaned[jobID] {
		delete(t.orphaned, jobID)
		return workerID, true
	}

	if worker, exists := reg.get(workerID); exists {
		if worker.ActiveJobs > 0 {
			worker.ActiveJobs--
		}
		worker.TotalJobsCompleted++
		reg.deriveStatus(worker)
	}
	return workerID, true
}

// release drops the binding and load without crediting a completion, for
// failed and cancelled jobs.
func (t *tracker) release(reg *registry, jobID string) {
	workerID, ok := t.byJob[jobID]
	if !ok {
		return
	}
	delete(t.byJob, jobID)

	if t.orphaned[jobID] {
		delete(t.orphaned, jobID)
		return
	}

	if worker, exists := reg.get(workerID); exists {
		if worker.ActiveJobs > 0 {
			worker.ActiveJobs--
		}
		reg.deriveStatus(worker)
	}
}

// markOrphan flags a binding whose worker record is gone. The load counter
// died with that record; complete and release must not touch whatever
// worker holds the ID afterwards.
func (t *tracker) markOrphan(jobID string) {
	if _, ok := t.byJob[jobID]; ok {
		t.orphaned[jobID] = true
	}
}

func (t *tracker) workerFor(jobID string) (string, bool) {
	workerID, ok := t.byJob[jobID]
	return workerID, ok
}

// jobsFor returns the jobs bound to a worker, sorted for determinism.
func (t *tracker) jobsFor(workerID string) []string {
	var jobs []string
	for jobID, bound := range t.byJob {
		if bound == workerID {
			jobs = append(jobs, jobID)
		}
	}
	sort.Strings(jobs)
	return jobs
}

// open is the number of in-flight bindings.
func (t *tracker) open() int {
	return len(t.byJob)
}
