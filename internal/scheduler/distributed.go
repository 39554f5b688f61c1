package scheduler

import (
	"fmt"
	"sort"

	"traingrid/internal/model"
)

// distState is the per-job coordination record for a distributed job.
// Created on the first claim, destroyed when the job reaches a terminal
// state.
type distState struct {
	numWorkers int
	allocated  []string       // claim order == rank order
	ranks      map[string]int // worker_id -> rank
	masterIP   string         // first-writer-wins, set with rank 0
	completed  map[int]bool   // ranks that reported shard completion
	results    map[int]map[string]interface{}
	orphaned   map[int]bool // ranks whose worker vanished; slot reclaimable
}

// coordinator allocates ranks for distributed jobs. Guarded by the
// Scheduler lock; the first-writer-wins master election is only correct
// under that serialization.
type coordinator struct {
	states map[string]*distState
}

func newCoordinator() *coordinator {
	return &coordinator{states: make(map[string]*distState)}
}

// claim runs the per-worker claim protocol. Rank order is strictly arrival
// order: there is no re-ranking, even if an early rank later disconnects.
// Returns the claim result and whether this claim filled the allocation.
func (c *coordinator) claim(reg *registry, job *model.Job, workerID, addr string, masterPort int) (*model.ClaimResponse, bool, error) {
	worker, ok := reg.get(workerID)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}

	state, exists := c.states[job.ID]
	if !exists {
		state = &distState{
			numWorkers: job.NumWorkers,
			ranks:      make(map[string]int),
			completed:  make(map[int]bool),
			results:    make(map[int]map[string]interface{}),
			orphaned:   make(map[int]bool),
		}
		c.states[job.ID] = state
	}

	// Re-claim by an already-ranked worker is idempotent. The master
	// address is not rewritten even if rank 0 reappears from elsewhere. A
	// reconnecting worker reclaims its orphaned slot.
	if rank, claimed := state.ranks[workerID]; claimed {
		if state.orphaned[rank] {
			// The slot's load was dropped with the old record; the fresh
			// record takes it back.
			delete(state.orphaned, rank)
			worker.ActiveJobs++
			reg.deriveStatus(worker)
		}
		return c.response(state, rank, masterPort), false, nil
	}

	if len(state.allocated) >= state.numWorkers {
		return nil, false, fmt.Errorf("%w: job %s has all %d ranks", ErrJobFullyAllocated, job.ID, state.numWorkers)
	}

	state.allocated = append(state.allocated, workerID)
	rank := len(state.allocated) - 1
	state.ranks[workerID] = rank
	if rank == 0 {
		state.masterIP = addr
	}

	worker.ActiveJobs++
	reg.deriveStatus(worker)

	full := len(state.allocated) == state.numWorkers
	return c.response(state, rank, masterPort), full, nil
}

func (c *coordinator) response(state *distState, rank, masterPort int) *model.ClaimResponse {
	return &model.ClaimResponse{
		Rank:          rank,
		WorldSize:     state.numWorkers,
		MasterAddress: state.masterIP,
		MasterPort:    masterPort,
	}
}

// shardComplete records a per-rank completion report. Returns whether every
// rank has now reported.
func (c *coordinator) shardComplete(jobID, workerID string, metrics map[string]interface{}) (bool, error) {
	state, ok := c.states[jobID]
	if !ok {
		return false, fmt.Errorf("%w: no distributed state for job %s", ErrNotFound, jobID)
	}
	rank, claimed := state.ranks[workerID]
	if !claimed {
		return false, fmt.Errorf("%w: worker %s holds no rank of job %s", ErrUnknownWorker, workerID, jobID)
	}

	if !state.completed[rank] {
		state.completed[rank] = true
	}
	if metrics != nil {
		state.results[rank] = metrics
	}
	return len(state.completed) == state.numWorkers, nil
}

// markOrphans flags the ranks held by a vanished worker as reclaimable and
// returns the affected job IDs. The jobs stay running: the remote worker
// may reconnect.
func (c *coordinator) markOrphans(workerID string) []string {
	var affected []string
	for jobID, state := range c.states {
		if rank, ok := state.ranks[workerID]; ok && !state.orphaned[rank] {
			state.orphaned[rank] = true
			affected = append(affected, jobID)
		}
	}
	sort.Strings(affected)
	return affected
}

// release tears down the coordination state and returns the worker load
// held by each still-allocated rank to the registry. Completed ranks have
// already been credited by the caller.
func (c *coordinator) release(reg *registry, jobID string, credit bool) {
	state, ok := c.states[jobID]
	if !ok {
		return
	}
	delete(c.states, jobID)

	for rank, workerID := range state.allocated {
		// An orphaned rank's load went down with the vanished record. A
		// record under the same ID now belongs to a restarted worker and
		// holds no load for this rank.
		if state.orphaned[rank] {
			continue
		}
		worker, exists := reg.get(workerID)
		if !exists {
			continue
		}
		if worker.ActiveJobs > 0 {
			worker.ActiveJobs--
		}
		if credit && state.completed[rank] {
			worker.TotalJobsCompleted++
		}
		reg.deriveStatus(worker)
	}
}

// status returns a read-only snapshot, or nil if the job has no
// distributed state.
func (c *coordinator) status(jobID string) *model.DistributedStatus {
	state, ok := c.states[jobID]
	if !ok {
		return nil
	}

	snapshot := &model.DistributedStatus{
		AllocatedWorkers: append([]string(nil), state.allocated...),
		MasterIP:         state.masterIP,
		WorkersCompleted: len(state.completed),
	}
	if len(state.results) > 0 {
		snapshot.WorkerResults = make(map[int]map[string]interface{}, len(state.results))
		for rank, metrics := range state.results {
			snapshot.WorkerResults[rank] = metrics
		}
	}
	for rank := range state.orphaned {
		snapshot.OrphanedRanks = append(snapshot.OrphanedRanks, rank)
	}
	sort.Ints(snapshot.OrphanedRanks)
	return snapshot
}

// open is the number of live rank allocations across all distributed jobs.
func (c *coordinator) open() int {
	total := 0
	for _, state := range c.states {
		total += len(state.allocated)
	}
	return total
}
