package scheduler

import (
	"fmt"
	"sync"
	"time"

	"traingrid/internal/model"
	"traingrid/pkg/constants"
)

// Options configures a Scheduler instance. Zero values fall back to the
// defaults in pkg/constants.
type Options struct {
	OnlineWindow time.Duration // Eligibility window for selection
	EvictAfter   time.Duration // Hard eviction threshold
	MasterPort   int           // Rendezvous port handed to distributed ranks
	Strategy     string        // Initial selection strategy
	Clock        Clock
	Notifier     Notifier
}

// Scheduler is the worker-pool scheduler aggregate: worker registry,
// assignment tracker, distributed coordinator and job table behind a single
// lock. Every mutation is a short critical section; no operation blocks on
// I/O. Instances are independent, so tests construct as many as they need.
type Scheduler struct {
	mu sync.RWMutex

	reg   *registry
	trk   *tracker
	coord *coordinator
	jobs  map[string]*model.Job

	strategy Strategy

	onlineWindow time.Duration
	evictAfter   time.Duration
	masterPort   int

	clock    Clock
	notifier Notifier
}

// New constructs a scheduler from options.
func New(opts Options) (*Scheduler, error) {
	if opts.OnlineWindow <= 0 {
		opts.OnlineWindow = constants.DefaultOnlineWindow
	}
	if opts.EvictAfter <= 0 {
		opts.EvictAfter = constants.DefaultEvictAfter
	}
	if opts.MasterPort <= 0 {
		opts.MasterPort = constants.DefaultMasterPort
	}
	if opts.Strategy == "" {
		opts.Strategy = constants.StrategyLeastLoaded
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}

	strategy, err := newStrategy(opts.Strategy)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		reg:          newRegistry(),
		trk:          newTracker(),
		coord:        newCoordinator(),
		jobs:         make(map[string]*model.Job),
		strategy:     strategy,
		onlineWindow: opts.OnlineWindow,
		evictAfter:   opts.EvictAfter,
		masterPort:   opts.MasterPort,
		clock:        opts.Clock,
		notifier:     opts.Notifier,
	}, nil
}

// emit delivers events after the lock is released.
func (s *Scheduler) emit(events ...Event) {
	if s.notifier == nil {
		return
	}
	for _, e := range events {
		s.notifier.Notify(e)
	}
}

func (s *Scheduler) event(t EventType, jobID, workerID string, status constants.JobStatus, msg string) Event {
	return Event{Type: t, JobID: jobID, WorkerID: workerID, Status: status, Message: msg, Time: s.clock.Now()}
}

// --- Worker registry operations ---

// RegisterWorker inserts or overwrites a worker record. Registration resets
// the load counter; an administrative disable flag survives re-registration.
func (s *Scheduler) RegisterWorker(req *model.RegisterRequest) (*model.Worker, error) {
	s.mu.Lock()
	_, existed := s.reg.get(req.WorkerID)
	worker, err := s.reg.register(req, s.clock.Now())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	// A re-registering worker has restarted: whatever it was running is
	// gone, so its in-flight assignments are orphaned like on unregister.
	var events []Event
	if existed {
		events = s.orphanWorkerLocked(worker.ID)
	}
	snapshot := worker.Clone()
	s.mu.Unlock()

	s.emit(append([]Event{s.event(EventWorkerRegistered, "", snapshot.ID, "", "")}, events...)...)
	return snapshot, nil
}

// Heartbeat refreshes liveness. Always succeeds; heartbeats for unknown
// workers are dropped so an evicted worker can retry until it re-registers.
func (s *Scheduler) Heartbeat(workerID string) {
	s.mu.Lock()
	s.reg.heartbeat(workerID, s.clock.Now())
	s.mu.Unlock()
}

// UnregisterWorker removes the record. In-flight assignments to the worker
// become orphaned: their jobs stay running with the slot marked
// reclaimable.
func (s *Scheduler) UnregisterWorker(workerID string) error {
	s.mu.Lock()
	if err := s.reg.unregister(workerID); err != nil {
		s.mu.Unlock()
		return err
	}
	events := s.orphanWorkerLocked(workerID)
	s.mu.Unlock()

	s.emit(append([]Event{s.event(EventWorkerUnregistered, "", workerID, "", "")}, events...)...)
	return nil
}

// orphanWorkerLocked flags every job bound to the worker as orphaned.
func (s *Scheduler) orphanWorkerLocked(workerID string) []Event {
	var events []Event
	for _, jobID := range s.trk.jobsFor(workerID) {
		s.trk.markOrphan(jobID)
		if job, ok := s.jobs[jobID]; ok && !job.Orphaned {
			job.Orphaned = true
			events = append(events, s.event(EventJobOrphaned, jobID, workerID, job.Status, ""))
		}
	}
	for _, jobID := range s.coord.markOrphans(workerID) {
		if job, ok := s.jobs[jobID]; ok {
			job.Orphaned = true
		}
		events = append(events, s.event(EventJobOrphaned, jobID, workerID, "", ""))
	}
	return events
}

// DisableWorker administratively excludes a worker from selection until
// explicitly re-enabled.
func (s *Scheduler) DisableWorker(workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.setDisabled(workerID, true)
}

// EnableWorker clears the administrative disable flag.
func (s *Scheduler) EnableWorker(workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.setDisabled(workerID, false)
}

// ReportProgress stores an advisory progress payload verbatim on the worker
// record. Reports for unknown workers are dropped.
func (s *Scheduler) ReportProgress(workerID string, progress map[string]interface{}) {
	s.mu.Lock()
	if worker, ok := s.reg.get(workerID); ok {
		worker.Progress = progress
	}
	s.mu.Unlock()
}

// Workers returns a cloned snapshot of every registered worker.
func (s *Scheduler) Workers() []*model.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.snapshot()
}

// GetWorker returns a clone of one worker record.
func (s *Scheduler) GetWorker(workerID string) (*model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	worker, ok := s.reg.get(workerID)
	if !ok {
		return nil, fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	return worker.Clone(), nil
}

// EvictStale removes every worker whose last heartbeat exceeds the eviction
// threshold, orphaning their in-flight assignments. Returns evicted IDs.
func (s *Scheduler) EvictStale() []string {
	s.mu.Lock()
	evicted := s.reg.evictStale(s.clock.Now(), s.evictAfter)
	var events []Event
	for _, workerID := range evicted {
		events = append(events, s.event(EventWorkerEvicted, "", workerID, "", ""))
		events = append(events, s.orphanWorkerLocked(workerID)...)
	}
	s.mu.Unlock()

	s.emit(events...)
	return evicted
}

// --- Job operations ---

// SubmitJob registers a new pending job under the supplied ID.
func (s *Scheduler) SubmitJob(jobID string, req *model.SubmitJobRequest) (*model.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", ErrInvalidInput)
	}
	numWorkers := req.NumWorkers
	if !req.IsDistributed {
		numWorkers = 1
	} else if numWorkers < 2 {
		return nil, fmt.Errorf("%w: distributed job needs num_workers >= 2", ErrInvalidInput)
	}

	job := &model.Job{
		ID:            jobID,
		Status:        constants.JobStatusPending,
		Resources:     req.Resources,
		IsDistributed: req.IsDistributed,
		NumWorkers:    numWorkers,
		WebhookURL:    req.WebhookURL,
	}

	s.mu.Lock()
	if _, exists := s.jobs[jobID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s already exists", ErrInvalidInput, jobID)
	}
	job.CreatedAt = s.clock.Now()
	s.jobs[jobID] = job
	snapshot := job.Clone()
	s.mu.Unlock()

	s.emit(s.event(EventJobSubmitted, jobID, "", constants.JobStatusPending, ""))
	return snapshot, nil
}

// GetJob returns the job and its distributed state. Orphan detection is
// lazy: querying a running job re-checks that its bound workers are still
// registered.
func (s *Scheduler) GetJob(jobID string) (*model.JobDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	if !job.Status.Terminal() {
		if workerID, bound := s.trk.workerFor(jobID); bound {
			if _, registered := s.reg.get(workerID); !registered {
				job.Orphaned = true
				s.trk.markOrphan(jobID)
			}
		}
	}

	return &model.JobDetail{
		Job:         job.Clone(),
		Distributed: s.coord.status(jobID),
	}, nil
}

// ListJobs returns cloned jobs, optionally filtered by status.
func (s *Scheduler) ListJobs(status constants.JobStatus) []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	return jobs
}

// ClaimSingle binds a worker to a single-worker job and moves it to
// running.
func (s *Scheduler) ClaimSingle(jobID, workerID string) (*model.Assignment, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if job.IsDistributed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is distributed, claim a rank instead", ErrInvalidInput, jobID)
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.Status)
	}

	if err := s.trk.assign(s.reg, jobID, workerID); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var events []Event
	if job.Status == constants.JobStatusPending {
		job.Status = constants.JobStatusRunning
		now := s.clock.Now()
		job.StartedAt = &now
		events = append(events, s.event(EventJobStatusChanged, jobID, workerID, job.Status, ""))
	}
	s.mu.Unlock()

	s.emit(events...)
	return &model.Assignment{JobID: jobID, WorkerID: workerID, Rank: 0}, nil
}

// ClaimDistributed runs the rank-claim protocol for a distributed job.
// addr is the claimer's observed network address; the first claimer's
// address becomes the master address for every rank.
func (s *Scheduler) ClaimDistributed(jobID, workerID, addr string) (*model.ClaimResponse, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if !job.IsDistributed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is not distributed", ErrInvalidInput, jobID)
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.Status)
	}

	resp, full, err := s.coord.claim(s.reg, job, workerID, addr, s.masterPort)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var events []Event
	if full && job.Status == constants.JobStatusPending {
		job.Status = constants.JobStatusRunning
		now := s.clock.Now()
		job.StartedAt = &now
		events = append(events, s.event(EventJobStatusChanged, jobID, workerID, job.Status, ""))
	}
	s.mu.Unlock()

	s.emit(events...)
	return resp, nil
}

// ReportShardResult records a per-rank completion for a distributed job.
// When the last rank reports, the job passes through aggregating and
// completes.
func (s *Scheduler) ReportShardResult(jobID, workerID string, metrics map[string]interface{}) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if job.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.Status)
	}

	done, err := s.coord.shardComplete(jobID, workerID, metrics)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var events []Event
	if done {
		job.Status = constants.JobStatusAggregating
		events = append(events, s.event(EventJobStatusChanged, jobID, workerID, job.Status, ""))

		// Result merge is in-memory and synchronous; the job completes in
		// the same critical section.
		s.coord.release(s.reg, jobID, true)
		job.Status = constants.JobStatusCompleted
		now := s.clock.Now()
		job.CompletedAt = &now
		events = append(events, s.event(EventJobStatusChanged, jobID, "", job.Status, ""))
	}
	s.mu.Unlock()

	s.emit(events...)
	return nil
}

// ReportJobStatus applies an explicit status report against the lifecycle
// automaton. Terminal reports release the job's workers.
func (s *Scheduler) ReportJobStatus(jobID, statusStr, message string) error {
	status, err := ParseJobStatus(statusStr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if !CanTransition(job.Status, status) {
		from := job.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	now := s.clock.Now()
	job.Status = status
	switch status {
	case constants.JobStatusRunning:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case constants.JobStatusCompleted:
		job.CompletedAt = &now
		s.trk.complete(s.reg, jobID)
		s.coord.release(s.reg, jobID, true)
	case constants.JobStatusFailed, constants.JobStatusCancelled:
		job.Error = message
		job.CompletedAt = &now
		s.trk.release(s.reg, jobID)
		s.coord.release(s.reg, jobID, false)
	}
	s.mu.Unlock()

	s.emit(s.event(EventJobStatusChanged, jobID, "", status, message))
	return nil
}

// CancelJob cancels a job from any non-terminal state.
func (s *Scheduler) CancelJob(jobID, reason string) error {
	return s.ReportJobStatus(jobID, constants.JobStatusCancelled.String(), reason)
}

// --- Selection ---

// SetStrategy hot-swaps the selection strategy without touching the
// registry.
func (s *Scheduler) SetStrategy(name string) error {
	strategy, err := newStrategy(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.strategy = strategy
	s.mu.Unlock()
	return nil
}

// StrategyName reports the active strategy.
func (s *Scheduler) StrategyName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy.Name()
}

// SelectWorker runs the active strategy over the eligible set.
func (s *Scheduler) SelectWorker(req *model.ResourceRequirements) (*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, err := s.selectWorkerLocked(req)
	if err != nil {
		return nil, err
	}
	return worker.Clone(), nil
}

func (s *Scheduler) selectWorkerLocked(req *model.ResourceRequirements) (*model.Worker, error) {
	eligible := s.reg.listEligible("", s.clock.Now(), s.onlineWindow)
	worker := s.strategy.Select(eligible, req)
	if worker == nil {
		return nil, fmt.Errorf("%w: no eligible workers", ErrInsufficientWorkers)
	}
	return worker, nil
}

// SelectWorkers picks count workers ranked by GPU score for a multi-worker
// job. All-or-nothing.
func (s *Scheduler) SelectWorkers(req *model.ResourceRequirements, count int) ([]*model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := s.reg.listEligible("", s.clock.Now(), s.onlineWindow)
	selected, err := selectN(eligible, req, count)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Worker, len(selected))
	for i, worker := range selected {
		out[i] = worker.Clone()
	}
	return out, nil
}

// DispatchJob is the server-push path: select a worker for a pending
// single-worker job and bind it.
func (s *Scheduler) DispatchJob(jobID string) (*model.Assignment, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}
	if job.IsDistributed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: distributed jobs are claimed by workers", ErrInvalidInput)
	}
	if job.Status != constants.JobStatusPending {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, job.Status)
	}

	worker, err := s.selectWorkerLocked(&job.Resources)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.trk.assign(s.reg, jobID, worker.ID); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	job.Status = constants.JobStatusRunning
	now := s.clock.Now()
	job.StartedAt = &now
	workerID := worker.ID
	s.mu.Unlock()

	s.emit(s.event(EventJobStatusChanged, jobID, workerID, constants.JobStatusRunning, ""))
	return &model.Assignment{JobID: jobID, WorkerID: workerID, Rank: 0}, nil
}

// --- Stats ---

// Stats returns pool-wide counters computed from a consistent snapshot.
func (s *Scheduler) Stats() *model.SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	stats := &model.SchedulerStats{
		PlatformCounts: make(map[string]int),
		GPUInventory:   make(map[string]int),
		Strategy:       s.strategy.Name(),
	}

	for _, worker := range s.reg.workers {
		stats.TotalWorkers++
		stats.PlatformCounts[worker.Platform.String()]++
		if s.reg.online(worker, now, s.onlineWindow) {
			stats.OnlineWorkers++
		}
		switch worker.Status {
		case constants.WorkerStatusIdle:
			stats.IdleWorkers++
		case constants.WorkerStatusBusy:
			stats.BusyWorkers++
		case constants.WorkerStatusDisabled:
			stats.DisabledWorkers++
		}
		if worker.GPU.Available && worker.GPU.Name != "" {
			stats.GPUInventory[worker.GPU.Name]++
		}
		stats.TotalActiveJobs += worker.ActiveJobs
	}

	for _, job := range s.jobs {
		switch job.Status {
		case constants.JobStatusPending:
			stats.PendingJobs++
		case constants.JobStatusRunning, constants.JobStatusAggregating:
			stats.RunningJobs++
		}
	}
	return stats
}

// OpenAssignments is the count of live bindings across single and
// distributed jobs; the load-conservation invariant ties it to the sum of
// worker ActiveJobs counters.
func (s *Scheduler) OpenAssignments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trk.open() + s.coord.open()
}
