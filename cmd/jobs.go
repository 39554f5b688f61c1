package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"traingrid/internal/jobs"
	"traingrid/internal/service"
	"traingrid/pkg/lock"
	"traingrid/pkg/logger"
)

func (app *Application) initJobs() error {
	if app.workerService == nil {
		logger.WarnCtx(app.ctx, "Service layer not initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	sweepInterval := app.config.Scheduler.SweepInterval
	snapshotInterval := app.config.Scheduler.SnapshotInterval

	// With multiple scheduler replicas, only one instance runs each
	// background pass. Without Redis the locks degrade to always-acquired.
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}

	sweepLock := lock.NewRedisDistributedLock(redisClient, "scheduler:sweep-lock")
	manager.Register(newEvictionSweepJob(sweepInterval, app.workerService, sweepLock))

	// Orphan detection walks local in-memory state, no lock needed
	manager.Register(newOrphanDetectJob(sweepInterval, app.jobService))

	if app.mysqlRepo != nil || app.redisClient != nil {
		snapshotLock := lock.NewRedisDistributedLock(redisClient, "scheduler:snapshot-lock")
		manager.Register(newWorkerSnapshotJob(snapshotInterval, app.workerService, snapshotLock))
	}

	app.jobsManager = manager
	return nil
}

// evictionSweepJob periodically removes workers whose heartbeats have gone
// silent past the eviction threshold.
type evictionSweepJob struct {
	interval        time.Duration
	workerService   *service.WorkerService
	distributedLock lock.DistributedLock
}

func newEvictionSweepJob(interval time.Duration, svc *service.WorkerService, distributedLock lock.DistributedLock) jobs.Job {
	return &evictionSweepJob{
		interval:        interval,
		workerService:   svc,
		distributedLock: distributedLock,
	}
}

func (j *evictionSweepJob) Name() string {
	return "eviction-sweep"
}

func (j *evictionSweepJob) Interval() time.Duration {
	return j.interval
}

func (j *evictionSweepJob) Run(ctx context.Context) error {
	if j.workerService == nil {
		return fmt.Errorf("worker service not configured")
	}

	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is running the eviction sweep, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	evicted := j.workerService.EvictStale(ctx)
	if len(evicted) > 0 {
		logger.InfoCtx(ctx, "eviction sweep removed %d workers: %v", len(evicted), evicted)
	}
	return nil
}

// orphanDetectJob surfaces running jobs whose assigned workers vanished
type orphanDetectJob struct {
	interval   time.Duration
	jobService *service.JobService
}

func newOrphanDetectJob(interval time.Duration, svc *service.JobService) jobs.Job {
	return &orphanDetectJob{interval: interval, jobService: svc}
}

func (j *orphanDetectJob) Name() string {
	return "orphan-detect"
}

func (j *orphanDetectJob) Interval() time.Duration {
	return j.interval
}

func (j *orphanDetectJob) Run(ctx context.Context) error {
	if j.jobService == nil {
		return fmt.Errorf("job service not configured")
	}
	j.jobService.DetectOrphans(ctx)
	return nil
}

// workerSnapshotJob periodically persists the worker pool to MySQL and
// refreshes the Redis mirror.
type workerSnapshotJob struct {
	interval        time.Duration
	workerService   *service.WorkerService
	distributedLock lock.DistributedLock
}

func newWorkerSnapshotJob(interval time.Duration, svc *service.WorkerService, distributedLock lock.DistributedLock) jobs.Job {
	return &workerSnapshotJob{
		interval:        interval,
		workerService:   svc,
		distributedLock: distributedLock,
	}
}

func (j *workerSnapshotJob) Name() string {
	return "worker-snapshot"
}

func (j *workerSnapshotJob) Interval() time.Duration {
	return j.interval
}

func (j *workerSnapshotJob) Run(ctx context.Context) error {
	if j.workerService == nil {
		return fmt.Errorf("worker service not configured")
	}

	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is snapshotting the pool, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	return j.workerService.Snapshot(ctx)
}
