package model

import "time"

// Job MySQL model for jobs table. Snapshots of in-memory scheduler state;
// the scheduler is the only writer while a job is in flight.
type Job struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID            string          `gorm:"column:job_id;type:varchar(255);not null;uniqueIndex:idx_job_id_unique" json:"job_id"`
	Status           string          `gorm:"column:status;type:varchar(50);not null;index:idx_status" json:"status"`
	Resources        JSONMap         `gorm:"column:resources;type:json" json:"resources"`
	IsDistributed    bool            `gorm:"column:is_distributed;not null;default:false" json:"is_distributed"`
	NumWorkers       int             `gorm:"column:num_workers;not null;default:1" json:"num_workers"`
	WorkerID         string          `gorm:"column:worker_id;type:varchar(255);index:idx_worker_id" json:"worker_id"`
	AllocatedWorkers JSONStringArray `gorm:"column:allocated_workers;type:json" json:"allocated_workers"`
	MasterIP         string          `gorm:"column:master_ip;type:varchar(255)" json:"master_ip"`
	Results          JSONMap         `gorm:"column:results;type:json" json:"results"`
	Error            string          `gorm:"column:error;type:text" json:"error"`
	WebhookURL       string          `gorm:"column:webhook_url;type:varchar(1000)" json:"webhook_url"`
	Orphaned         bool            `gorm:"column:orphaned;not null;default:false" json:"orphaned"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3);index:idx_created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
	StartedAt        *time.Time      `gorm:"column:started_at;type:datetime(3)" json:"started_at"`
	CompletedAt      *time.Time      `gorm:"column:completed_at;type:datetime(3);index:idx_completed_at" json:"completed_at"`
}

// TableName specifies the table name for Job
func (Job) TableName() string {
	return "jobs"
}
