package model

import (
	"encoding/json"
	"time"

	"traingrid/pkg/constants"
)

// ResourceRequirements requested resources plus scheduling hints.
type ResourceRequirements struct {
	GPUCount             int     `json:"gpu_count,omitempty"`
	CPUCores             int     `json:"cpu_cores,omitempty"`
	MemoryGB             float64 `json:"memory_gb,omitempty"`
	RequiresGPU          bool    `json:"requires_gpu,omitempty"`
	PreferredPlatform    string  `json:"preferred_platform,omitempty"`
	Priority             string  `json:"priority,omitempty"`
	EstimatedTimeMinutes int     `json:"estimated_time_minutes,omitempty"`
}

// Job is a training job tracked by the scheduler. The scheduler is the only
// writer of Status, AllocatedWorkers and MasterIP while the job is in
// flight; external storage only persists snapshots.
type Job struct {
	ID            string               `json:"job_id"`
	Status        constants.JobStatus  `json:"status"`
	Resources     ResourceRequirements `json:"resources"`
	IsDistributed bool                 `json:"is_distributed"`
	NumWorkers    int                  `json:"num_workers"`
	WebhookURL    string               `json:"webhook_url,omitempty"`
	Error         string               `json:"error,omitempty"`
	Orphaned      bool                 `json:"orphaned,omitempty"` // A bound worker vanished; slot reclaimable, job still running

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to hand to readers outside the scheduler lock.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// ToJSON converts the job to JSON bytes
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// Assignment is a (job, worker, rank) binding. Rank is always 0 for
// single-worker jobs.
type Assignment struct {
	JobID    string `json:"job_id"`
	WorkerID string `json:"worker_id"`
	Rank     int    `json:"rank"`
}

// ClaimResponse is returned to a worker that successfully claimed a rank of
// a distributed job.
type ClaimResponse struct {
	Rank          int    `json:"rank"`
	WorldSize     int    `json:"world_size"`
	MasterAddress string `json:"master_address"`
	MasterPort    int    `json:"master_port"`
}

// DistributedStatus is a read-only snapshot of a distributed job's
// coordination state.
type DistributedStatus struct {
	AllocatedWorkers []string                       `json:"allocated_workers"`
	MasterIP         string                         `json:"master_ip,omitempty"`
	WorkersCompleted int                            `json:"workers_completed"`
	WorkerResults    map[int]map[string]interface{} `json:"worker_results,omitempty"`
	OrphanedRanks    []int                          `json:"orphaned_ranks,omitempty"`
}

// SubmitJobRequest job submission request
type SubmitJobRequest struct {
	Resources     ResourceRequirements `json:"resources"`
	IsDistributed bool                 `json:"is_distributed"`
	NumWorkers    int                  `json:"num_workers"`
	WebhookURL    string               `json:"webhook,omitempty"`
}

// SubmitJobResponse job submission response
type SubmitJobResponse struct {
	JobID  string              `json:"job_id"`
	Status constants.JobStatus `json:"status"`
}

// JobStatusReport explicit status report from a worker or operator.
type JobStatusReport struct {
	Status  string `json:"status" binding:"required"`
	Message string `json:"message,omitempty"`
}

// ShardResultRequest per-rank completion report for a distributed job.
type ShardResultRequest struct {
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// JobDetail job plus distributed coordination state, if any.
type JobDetail struct {
	Job         *Job               `json:"job"`
	Distributed *DistributedStatus `json:"distributed,omitempty"`
}
