package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// JobRepository handles job persistence in MySQL
type JobRepository struct {
	ds *Datastore
}

// NewJobRepository creates a new job repository
func NewJobRepository(ds *Datastore) *JobRepository {
	return &JobRepository{ds: ds}
}

// Create creates a new job row
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	return r.ds.DB(ctx).Create(job).Error
}

// Get retrieves a job by job_id. Returns nil, nil when missing.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	err := r.ds.DB(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// UpdateFields updates specific fields of a job by job_id
func (r *JobRepository) UpdateFields(ctx context.Context, jobID string, updates map[string]interface{}) error {
	return r.ds.DB(ctx).Model(&Job{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}

// UpdateStatus updates job status with CAS on the current status. The
// scheduler's lifecycle automaton already serializes transitions; the CAS
// guards against a replayed persistence write landing out of order.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, fromStatus, toStatus string) error {
	result := r.ds.DB(ctx).Model(&Job{}).
		Where("job_id = ? AND status = ?", jobID, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return fmt.Errorf("failed to update job status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found or status changed (expected: %s): job_id=%s", fromStatus, jobID)
	}
	return nil
}

// Delete deletes a job row
func (r *JobRepository) Delete(ctx context.Context, jobID string) error {
	return r.ds.DB(ctx).Where("job_id = ?", jobID).Delete(&Job{}).Error
}

// List retrieves jobs with optional filters, newest first
func (r *JobRepository) List(ctx context.Context, filters map[string]interface{}, limit, offset int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := r.ds.DB(ctx).Model(&Job{})
	for key, value := range filters {
		query = query.Where(key+" = ?", value)
	}

	var jobs []*Job
	err := query.
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// GetNonTerminal retrieves rows still marked in flight. The orphan sweep
// uses it to close out rows left behind by a previous process life.
func (r *JobRepository) GetNonTerminal(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	err := r.ds.DB(ctx).
		Where("status IN ?", []string{"PENDING", "RUNNING", "AGGREGATING"}).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get non-terminal jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus counts jobs by status
func (r *JobRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.ds.DB(ctx).Model(&Job{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
