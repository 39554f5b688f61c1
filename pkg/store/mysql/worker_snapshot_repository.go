package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// WorkerSnapshotRepository persists periodic snapshots of the worker pool
type WorkerSnapshotRepository struct {
	ds *Datastore
}

// NewWorkerSnapshotRepository creates a new worker snapshot repository
func NewWorkerSnapshotRepository(ds *Datastore) *WorkerSnapshotRepository {
	return &WorkerSnapshotRepository{ds: ds}
}

// Upsert writes one snapshot pass, one row per worker keyed by worker_id
func (r *WorkerSnapshotRepository) Upsert(ctx context.Context, snapshots []*WorkerSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "worker_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"platform", "status", "gpu_available", "gpu_name", "gpu_memory_gb",
			"active_jobs", "total_jobs_completed", "last_heartbeat", "snapshot_at",
		}),
	}).Create(snapshots).Error
}

// List retrieves all snapshot rows
func (r *WorkerSnapshotRepository) List(ctx context.Context) ([]*WorkerSnapshot, error) {
	var snapshots []*WorkerSnapshot
	err := r.ds.DB(ctx).Order("worker_id").Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list worker snapshots: %w", err)
	}
	return snapshots, nil
}

// DeleteStale removes rows for workers not snapshotted since the cutoff,
// keeping the table in step with evictions.
func (r *WorkerSnapshotRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.ds.DB(ctx).
		Where("snapshot_at < ?", cutoff).
		Delete(&WorkerSnapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete stale worker snapshots: %w", result.Error)
	}
	return result.RowsAffected, nil
}
