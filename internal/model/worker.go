package model

import (
	"time"

	"traingrid/pkg/constants"
)

// GPUInfo describes the accelerator a worker advertises at registration.
type GPUInfo struct {
	Available bool    `json:"gpu_available"`
	Name      string  `json:"gpu_name,omitempty"`
	MemoryGB  float64 `json:"gpu_memory_gb,omitempty"`
}

// Worker is a remote compute agent in the pool. ActiveJobs is a derived
// counter kept in sync by the assignment tracker; the tracker is
// authoritative for who runs what.
type Worker struct {
	ID                 string                 `json:"worker_id"`
	Platform           constants.Platform     `json:"platform"`
	GPU                GPUInfo                `json:"gpu"`
	Status             constants.WorkerStatus `json:"status"`
	ActiveJobs         int                    `json:"active_jobs"`
	TotalJobsCompleted int                    `json:"total_jobs_completed"`
	LastHeartbeat      time.Time              `json:"last_heartbeat"`
	RegisteredAt       time.Time              `json:"registered_at"`
	AdminDisabled      bool                   `json:"admin_disabled,omitempty"`
	Address            string                 `json:"address,omitempty"` // Last observed network address
	Progress           map[string]interface{} `json:"progress,omitempty"`
}

// Clone returns a copy safe to hand to readers outside the scheduler lock.
func (w *Worker) Clone() *Worker {
	c := *w
	if w.Progress != nil {
		c.Progress = make(map[string]interface{}, len(w.Progress))
		for k, v := range w.Progress {
			c.Progress[k] = v
		}
	}
	return &c
}

// RegisterRequest worker registration request
type RegisterRequest struct {
	WorkerID     string  `json:"worker_id" binding:"required"`
	Platform     string  `json:"platform"`
	GPUAvailable bool    `json:"gpu_available"`
	GPUName      string  `json:"gpu_name"`
	GPUMemoryGB  float64 `json:"gpu_memory_gb"`
	Address      string  `json:"address,omitempty"`
}

// RegisterResponse worker registration response
type RegisterResponse struct {
	WorkerID string `json:"worker_id"`
	Status   string `json:"status"`
}

// ProgressRequest advisory progress report, stored verbatim
type ProgressRequest struct {
	Progress map[string]interface{} `json:"progress" binding:"required"`
}

// SchedulerStats aggregate pool statistics
type SchedulerStats struct {
	TotalWorkers    int            `json:"total_workers"`
	OnlineWorkers   int            `json:"online_workers"`
	IdleWorkers     int            `json:"idle_workers"`
	BusyWorkers     int            `json:"busy_workers"`
	DisabledWorkers int            `json:"disabled_workers"`
	PlatformCounts  map[string]int `json:"platform_counts"`
	GPUInventory    map[string]int `json:"gpu_inventory"`
	TotalActiveJobs int            `json:"total_active_jobs"`
	PendingJobs     int            `json:"pending_jobs"`
	RunningJobs     int            `json:"running_jobs"`
	Strategy        string         `json:"strategy"`
}
