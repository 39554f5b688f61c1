package model

import "time"

// WorkerSnapshot MySQL model for worker_snapshots table. One row per
// worker, upserted on each snapshot pass; history is not kept here.
type WorkerSnapshot struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkerID           string    `gorm:"column:worker_id;type:varchar(255);not null;uniqueIndex:idx_worker_id_unique" json:"worker_id"`
	Platform           string    `gorm:"column:platform;type:varchar(50);not null;index:idx_platform" json:"platform"`
	Status             string    `gorm:"column:status;type:varchar(50);not null" json:"status"`
	GPUAvailable       bool      `gorm:"column:gpu_available;not null;default:false" json:"gpu_available"`
	GPUName            string    `gorm:"column:gpu_name;type:varchar(255)" json:"gpu_name"`
	GPUMemoryGB        float64   `gorm:"column:gpu_memory_gb" json:"gpu_memory_gb"`
	ActiveJobs         int       `gorm:"column:active_jobs;not null;default:0" json:"active_jobs"`
	TotalJobsCompleted int       `gorm:"column:total_jobs_completed;not null;default:0" json:"total_jobs_completed"`
	LastHeartbeat      time.Time `gorm:"column:last_heartbeat;type:datetime(3)" json:"last_heartbeat"`
	RegisteredAt       time.Time `gorm:"column:registered_at;type:datetime(3)" json:"registered_at"`
	SnapshotAt         time.Time `gorm:"column:snapshot_at;type:datetime(3);not null" json:"snapshot_at"`
}

// TableName specifies the table name for WorkerSnapshot
func (WorkerSnapshot) TableName() string {
	return "worker_snapshots"
}
