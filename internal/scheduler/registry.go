package scheduler

import (
	"fmt"
	"sort"
	"time"

	"traingrid/internal/model"
	"traingrid/pkg/constants"
)

// registry owns the worker records. It carries no lock of its own: every
// access goes through the Scheduler aggregate, which serializes mutations.
type registry struct {
	workers map[string]*model.Worker
}

func newRegistry() *registry {
	return &registry{workers: make(map[string]*model.Worker)}
}

// register inserts or overwrites the record for the caller-supplied worker
// ID. Re-registration resets the load counter but does not clear an admin
// disable flag.
func (r *registry) register(req *model.RegisterRequest, now time.Time) (*model.Worker, error) {
	if req.WorkerID == "" {
		return nil, fmt.Errorf("%w: worker_id is required", ErrInvalidInput)
	}

	worker := &model.Worker{
		ID:       req.WorkerID,
		Platform: constants.ParsePlatform(req.Platform),
		GPU: model.GPUInfo{
			Available: req.GPUAvailable,
			Name:      req.GPUName,
			MemoryGB:  req.GPUMemoryGB,
		},
		Status:        constants.WorkerStatusIdle,
		LastHeartbeat: now,
		RegisteredAt:  now,
		Address:       req.Address,
	}

	if prev, ok := r.workers[req.WorkerID]; ok {
		worker.TotalJobsCompleted = prev.TotalJobsCompleted
		worker.AdminDisabled = prev.AdminDisabled
		if worker.AdminDisabled {
			worker.Status = constants.WorkerStatusDisabled
		}
	}

	r.workers[req.WorkerID] = worker
	return worker, nil
}

// heartbeat refreshes the liveness timestamp and re-derives the status from
// the current load. Heartbeats for unknown workers are dropped, not
// errored, so an evicted worker can retry idempotently until it
// re-registers.
func (r *registry) heartbeat(workerID string, now time.Time) {
	worker, ok := r.workers[workerID]
	if !ok {
		return
	}
	worker.LastHeartbeat = now
	r.deriveStatus(worker)
}

func (r *registry) unregister(workerID string) error {
	if _, ok := r.workers[workerID]; !ok {
		return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	delete(r.workers, workerID)
	return nil
}

func (r *registry) get(workerID string) (*model.Worker, bool) {
	w, ok := r.workers[workerID]
	return w, ok
}

func (r *registry) setDisabled(workerID string, disabled bool) error {
	worker, ok := r.workers[workerID]
	if !ok {
		return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	worker.AdminDisabled = disabled
	r.deriveStatus(worker)
	return nil
}

// deriveStatus recomputes the status from the load counter, unless the
// worker is administratively disabled.
func (r *registry) deriveStatus(worker *model.Worker) {
	if worker.AdminDisabled {
		worker.Status = constants.WorkerStatusDisabled
		return
	}
	if worker.ActiveJobs > 0 {
		worker.Status = constants.WorkerStatusBusy
	} else {
		worker.Status = constants.WorkerStatusIdle
	}
}

// evictStale removes every worker whose last heartbeat is older than the
// hard threshold and returns the evicted IDs.
func (r *registry) evictStale(now time.Time, threshold time.Duration) []string {
	var evicted []string
	for id, worker := range r.workers {
		if now.Sub(worker.LastHeartbeat) > threshold {
			delete(r.workers, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// online reports whether the worker heartbeated within the eligibility
// window. This is deliberately a shorter window than eviction: offline
// workers are skipped by selection but keep their registration until the
// sweep purges them.
func (r *registry) online(worker *model.Worker, now time.Time, window time.Duration) bool {
	return now.Sub(worker.LastHeartbeat) <= window
}

// listEligible returns live, non-disabled workers, optionally filtered by
// platform, sorted by worker ID so iteration order is stable for a given
// snapshot.
func (r *registry) listEligible(platform constants.Platform, now time.Time, window time.Duration) []*model.Worker {
	eligible := make([]*model.Worker, 0, len(r.workers))
	for _, worker := range r.workers {
		if worker.AdminDisabled || !r.online(worker, now, window) {
			continue
		}
		if platform != "" && worker.Platform != platform {
			continue
		}
		eligible = append(eligible, worker)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible
}

// snapshot returns cloned records for read paths outside the lock.
func (r *registry) snapshot() []*model.Worker {
	workers := make([]*model.Worker, 0, len(r.workers))
	for _, worker := range r.workers {
		workers = append(workers, worker.Clone())
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers
}
