package service

import (
	"context"

	"github.com/google/uuid"

	"traingrid/internal/model"
	"traingrid/internal/scheduler"
	"traingrid/pkg/constants"
	"traingrid/pkg/logger"
	queue "traingrid/pkg/queue/asynq"
	"traingrid/pkg/status"
	"traingrid/pkg/store/mysql"
)

// JobService fronts the scheduler's job lifecycle for the HTTP layer. The
// in-memory scheduler is authoritative; MySQL rows are written after the
// fact so a restart can restore non-terminal jobs, and webhooks fire
// through the queue when a job reaches a terminal status.
type JobService struct {
	sched     *scheduler.Scheduler
	jobRepo   *mysql.JobRepository
	queue     *queue.Manager
	sanitizer *status.MessageSanitizer
}

// NewJobService creates a new Job service. jobRepo and queueMgr may be nil
// when MySQL or the queue is not configured.
func NewJobService(sched *scheduler.Scheduler, jobRepo *mysql.JobRepository, queueMgr *queue.Manager) *JobService {
	return &JobService{
		sched:     sched,
		jobRepo:   jobRepo,
		queue:     queueMgr,
		sanitizer: status.NewMessageSanitizer(),
	}
}

// Submit creates a new job and returns its generated ID
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.Job, error) {
	jobID := uuid.New().String()

	job, err := s.sched.SubmitJob(jobID, req)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "job submitted, job_id: %s, distributed: %v, workers: %d",
		job.ID, job.IsDistributed, job.NumWorkers)

	if s.jobRepo != nil {
		if err := s.jobRepo.Create(ctx, mysql.FromJobDomain(job, nil)); err != nil {
			logger.WarnCtx(ctx, "failed to persist job %s: %v", job.ID, err)
		}
	}
	return job, nil
}

// Get returns a job with its distributed coordination state
func (s *JobService) Get(jobID string) (*model.JobDetail, error) {
	return s.sched.GetJob(jobID)
}

// List returns jobs, optionally filtered by status. An empty status means
// all jobs.
func (s *JobService) List(statusStr string) ([]*model.Job, error) {
	var status constants.JobStatus
	if statusStr != "" {
		parsed, err := scheduler.ParseJobStatus(statusStr)
		if err != nil {
			return nil, err
		}
		status = parsed
	}
	return s.sched.ListJobs(status), nil
}

// ClaimSingle binds a pending single-worker job to the claiming worker
func (s *JobService) ClaimSingle(ctx context.Context, jobID, workerID string) (*model.Assignment, error) {
	assignment, err := s.sched.ClaimSingle(jobID, workerID)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "job claimed, job_id: %s, worker_id: %s", jobID, workerID)
	s.persistJob(ctx, jobID)
	return assignment, nil
}

// ClaimDistributed allocates a rank in a distributed job to the claiming
// worker
func (s *JobService) ClaimDistributed(ctx context.Context, jobID, workerID, addr string) (*model.ClaimResponse, error) {
	resp, err := s.sched.ClaimDistributed(jobID, workerID, addr)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "distributed rank claimed, job_id: %s, worker_id: %s, rank: %d/%d",
		jobID, workerID, resp.Rank, resp.WorldSize)
	s.persistJob(ctx, jobID)
	return resp, nil
}

// ReportShardResult records one rank's result. When the last rank reports,
// the job completes and the webhook fires.
func (s *JobService) ReportShardResult(ctx context.Context, jobID, workerID string, metrics map[string]interface{}) error {
	if err := s.sched.ReportShardResult(jobID, workerID, metrics); err != nil {
		return err
	}
	s.afterStatusChange(ctx, jobID)
	return nil
}

// ReportStatus applies a worker-reported status transition
func (s *JobService) ReportStatus(ctx context.Context, jobID, statusStr, message string) error {
	// Worker messages can carry tracebacks with credentials and paths
	message = s.sanitizer.Sanitize(message)

	if err := s.sched.ReportJobStatus(jobID, statusStr, message); err != nil {
		return err
	}
	s.afterStatusChange(ctx, jobID)
	return nil
}

// Cancel terminates a job from the client side
func (s *JobService) Cancel(ctx context.Context, jobID, reason string) error {
	reason = s.sanitizer.Sanitize(reason)

	if err := s.sched.CancelJob(jobID, reason); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "job cancelled, job_id: %s, reason: %s", jobID, reason)
	s.afterStatusChange(ctx, jobID)
	return nil
}

// Dispatch proactively assigns a pending single-worker job to the best
// eligible worker under the current strategy
func (s *JobService) Dispatch(ctx context.Context, jobID string) (*model.Assignment, error) {
	assignment, err := s.sched.DispatchJob(jobID)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "job dispatched, job_id: %s, worker_id: %s", jobID, assignment.WorkerID)
	s.persistJob(ctx, jobID)
	return assignment, nil
}

// DetectOrphans walks running jobs so orphaned assignments are surfaced
// and announced even when nobody polls them. Called by the background
// sweep; the same check runs lazily on every Get.
func (s *JobService) DetectOrphans(ctx context.Context) {
	for _, job := range s.sched.ListJobs(constants.JobStatusRunning) {
		detail, err := s.sched.GetJob(job.ID)
		if err != nil {
			continue
		}
		if detail.Job.Orphaned && !job.Orphaned {
			logger.InfoCtx(ctx, "job %s has orphaned assignments, slots reclaimable", job.ID)
			s.persistDetail(ctx, detail)
		}
	}

	s.closeStaleRows(ctx)
}

// closeStaleRows fails DB rows left non-terminal by a previous process
// life. The scheduler does not resurrect jobs on restart, so a row with
// no in-memory counterpart can never progress.
func (s *JobService) closeStaleRows(ctx context.Context) {
	if s.jobRepo == nil {
		return
	}

	rows, err := s.jobRepo.GetNonTerminal(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "failed to list non-terminal job rows: %v", err)
		return
	}
	for _, row := range rows {
		if _, err := s.sched.GetJob(row.JobID); err == nil {
			continue
		}
		if err := s.jobRepo.UpdateStatus(ctx, row.JobID, row.Status, constants.JobStatusFailed.String()); err != nil {
			logger.WarnCtx(ctx, "failed to close stale job row %s: %v", row.JobID, err)
		}
	}
}

// afterStatusChange persists the job's new state and fires the completion
// webhook if the job just became terminal.
func (s *JobService) afterStatusChange(ctx context.Context, jobID string) {
	detail, err := s.sched.GetJob(jobID)
	if err != nil {
		return
	}

	s.persistDetail(ctx, detail)

	if detail.Job.Status.Terminal() && detail.Job.WebhookURL != "" && s.queue != nil {
		if err := s.queue.EnqueueWebhook(ctx, detail.Job.WebhookURL, detail.Job); err != nil {
			logger.WarnCtx(ctx, "failed to enqueue webhook for job %s: %v", jobID, err)
		}
	}
}

func (s *JobService) persistJob(ctx context.Context, jobID string) {
	detail, err := s.sched.GetJob(jobID)
	if err != nil {
		return
	}
	s.persistDetail(ctx, detail)
}

func (s *JobService) persistDetail(ctx context.Context, detail *model.JobDetail) {
	if s.jobRepo == nil {
		return
	}

	row := mysql.FromJobDomain(detail.Job, detail.Distributed)
	updates := map[string]interface{}{
		"status":            row.Status,
		"allocated_workers": row.AllocatedWorkers,
		"master_ip":         row.MasterIP,
		"results":           row.Results,
		"error":             row.Error,
		"orphaned":          row.Orphaned,
		"started_at":        row.StartedAt,
		"completed_at":      row.CompletedAt,
	}
	if err := s.jobRepo.UpdateFields(ctx, detail.Job.ID, updates); err != nil {
		logger.WarnCtx(ctx, "failed to persist job %s: %v", detail.Job.ID, err)
	}
}
