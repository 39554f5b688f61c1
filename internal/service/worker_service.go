package service

import (
	"context"
	"time"

	"traingrid/internal/model"
	"traingrid/internal/scheduler"
	"traingrid/pkg/logger"
	"traingrid/pkg/store/mysql"
	redisstore "traingrid/pkg/store/redis"
)

// WorkerService fronts the scheduler's worker registry for the HTTP layer.
// The scheduler is authoritative; the Redis mirror and MySQL snapshots are
// written best effort and never gate a registry operation.
type WorkerService struct {
	sched        *scheduler.Scheduler
	mirror       *redisstore.WorkerMirror
	snapshotRepo *mysql.WorkerSnapshotRepository
}

// NewWorkerService creates a new Worker service. mirror and snapshotRepo
// may be nil when Redis or MySQL is not configured.
func NewWorkerService(sched *scheduler.Scheduler, mirror *redisstore.WorkerMirror, snapshotRepo *mysql.WorkerSnapshotRepository) *WorkerService {
	return &WorkerService{
		sched:        sched,
		mirror:       mirror,
		snapshotRepo: snapshotRepo,
	}
}

// Register registers or re-registers a worker
func (s *WorkerService) Register(ctx context.Context, req *model.RegisterRequest) (*model.Worker, error) {
	worker, err := s.sched.RegisterWorker(req)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "worker registered, worker_id: %s, platform: %s, gpu: %s",
		worker.ID, worker.Platform, worker.GPU.Name)

	s.mirrorWorker(ctx, worker)
	return worker, nil
}

// Heartbeat refreshes a worker's liveness
func (s *WorkerService) Heartbeat(ctx context.Context, workerID string) {
	s.sched.Heartbeat(workerID)

	if worker, err := s.sched.GetWorker(workerID); err == nil {
		s.mirrorWorker(ctx, worker)
	}
}

// Unregister removes a worker from the pool
func (s *WorkerService) Unregister(ctx context.Context, workerID string) error {
	if err := s.sched.UnregisterWorker(workerID); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "worker unregistered, worker_id: %s", workerID)

	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, workerID); err != nil {
			logger.WarnCtx(ctx, "failed to remove worker from mirror: %v", err)
		}
	}
	return nil
}

// SetDisabled toggles the administrative disable flag
func (s *WorkerService) SetDisabled(ctx context.Context, workerID string, disabled bool) error {
	var err error
	if disabled {
		err = s.sched.DisableWorker(workerID)
	} else {
		err = s.sched.EnableWorker(workerID)
	}
	if err != nil {
		return err
	}

	logger.InfoCtx(ctx, "worker admin state changed, worker_id: %s, disabled: %v", workerID, disabled)

	if worker, getErr := s.sched.GetWorker(workerID); getErr == nil {
		s.mirrorWorker(ctx, worker)
	}
	return nil
}

// ReportProgress stores an advisory progress payload
func (s *WorkerService) ReportProgress(ctx context.Context, workerID string, progress map[string]interface{}) {
	s.sched.ReportProgress(workerID, progress)
}

// Get returns one worker record
func (s *WorkerService) Get(workerID string) (*model.Worker, error) {
	return s.sched.GetWorker(workerID)
}

// List returns the full pool
func (s *WorkerService) List() []*model.Worker {
	return s.sched.Workers()
}

// Stats returns pool statistics
func (s *WorkerService) Stats() *model.SchedulerStats {
	return s.sched.Stats()
}

// SetStrategy switches the worker selection strategy
func (s *WorkerService) SetStrategy(name string) error {
	return s.sched.SetStrategy(name)
}

// StrategyName returns the active selection strategy
func (s *WorkerService) StrategyName() string {
	return s.sched.StrategyName()
}

// EvictStale runs one eviction pass and cleans mirrored records. Called by
// the background sweep job.
func (s *WorkerService) EvictStale(ctx context.Context) []string {
	evicted := s.sched.EvictStale()
	for _, workerID := range evicted {
		logger.InfoCtx(ctx, "worker evicted after missed heartbeats, worker_id: %s", workerID)
		if s.mirror != nil {
			if err := s.mirror.Delete(ctx, workerID); err != nil {
				logger.WarnCtx(ctx, "failed to remove evicted worker from mirror: %v", err)
			}
		}
	}
	return evicted
}

// Snapshot persists the current pool to MySQL and refreshes the mirror.
// Called by the background snapshot job.
func (s *WorkerService) Snapshot(ctx context.Context) error {
	workers := s.sched.Workers()
	now := time.Now()

	if s.mirror != nil {
		if err := s.mirror.SaveAll(ctx, workers); err != nil {
			logger.WarnCtx(ctx, "failed to refresh worker mirror: %v", err)
		}
	}

	if s.snapshotRepo == nil {
		return nil
	}

	rows := make([]*mysql.WorkerSnapshot, 0, len(workers))
	for _, worker := range workers {
		rows = append(rows, mysql.FromWorkerDomain(worker, now))
	}
	if err := s.snapshotRepo.Upsert(ctx, rows); err != nil {
		return err
	}

	// Rows older than two passes belong to evicted workers
	_, err := s.snapshotRepo.DeleteStale(ctx, now.Add(-2*time.Minute))
	return err
}

func (s *WorkerService) mirrorWorker(ctx context.Context, worker *model.Worker) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Save(ctx, worker); err != nil {
		logger.WarnCtx(ctx, "failed to mirror worker %s: %v", worker.ID, err)
	}
}
