package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traingrid/internal/model"
	"traingrid/pkg/constants"
)

// recordingNotifier collects events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(e Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) byType(t EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func submitJob(t *testing.T, s *Scheduler, jobID string, req *model.SubmitJobRequest) *model.Job {
	t.Helper()
	if req == nil {
		req = &model.SubmitJobRequest{}
	}
	job, err := s.SubmitJob(jobID, req)
	require.NoError(t, err)
	return job
}

func TestSubmitJob(t *testing.T) {
	s := newTestScheduler(t, newFakeClock())

	t.Run("single job defaults to one worker", func(t *testing.T) {
		job := submitJob(t, s, "j1", &model.SubmitJobRequest{NumWorkers: 5})
		assert.Equal(t, constants.JobStatusPending, job.Status)
		assert.Equal(t, 1, job.NumWorkers)
		assert.False(t, job.IsDistributed)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		_, err := s.SubmitJob("j1", &model.SubmitJobRequest{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("distributed job needs at least two workers", func(t *testing.T) {
		_, err := s.SubmitJob("j2", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 1})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		_, err := s.SubmitJob("", &model.SubmitJobRequest{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestClaimSingle(t *testing.T) {
	t.Run("moves a pending job to running", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)

		assignment, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)
		assert.Equal(t, 0, assignment.Rank)

		detail, err := s.GetJob("j1")
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusRunning, detail.Job.Status)
		require.NotNil(t, detail.Job.StartedAt)

		worker, err := s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, constants.WorkerStatusBusy, worker.Status)
	})

	t.Run("second claim is rejected without stealing the job", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		registerWorker(t, s, "w2", "colab", "", 0)
		submitJob(t, s, "j1", nil)

		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)
		_, err = s.ClaimSingle("j1", "w2")
		assert.ErrorIs(t, err, ErrAlreadyAssigned)

		worker, err := s.GetWorker("w2")
		require.NoError(t, err)
		assert.Equal(t, 0, worker.ActiveJobs)
	})

	t.Run("rejects unknown job, unknown worker and wrong job kind", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 2})
		submitJob(t, s, "j1", nil)

		_, err := s.ClaimSingle("ghost", "w1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ClaimSingle("j1", "ghost")
		assert.ErrorIs(t, err, ErrUnknownWorker)
		_, err = s.ClaimSingle("dist", "w1")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("terminal job cannot be claimed", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)
		require.NoError(t, s.CancelJob("j1", "operator"))

		_, err := s.ClaimSingle("j1", "w1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestClaimDistributed(t *testing.T) {
	setup := func(t *testing.T) *Scheduler {
		s := newTestScheduler(t, newFakeClock())
		for _, id := range []string{"w1", "w2", "w3", "w4"} {
			registerWorker(t, s, id, "kaggle", "Tesla P100", 16)
		}
		submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 3})
		return s
	}

	t.Run("ranks follow arrival order and share the master address", func(t *testing.T) {
		s := setup(t)

		first, err := s.ClaimDistributed("dist", "w2", "10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, 0, first.Rank)
		assert.Equal(t, "10.0.0.2", first.MasterAddress)
		assert.Equal(t, 3, first.WorldSize)
		assert.Equal(t, constants.DefaultMasterPort, first.MasterPort)

		second, err := s.ClaimDistributed("dist", "w1", "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, 1, second.Rank)
		assert.Equal(t, "10.0.0.2", second.MasterAddress)

		// The job runs only once the allocation is full.
		detail, err := s.GetJob("dist")
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusPending, detail.Job.Status)

		third, err := s.ClaimDistributed("dist", "w3", "10.0.0.3")
		require.NoError(t, err)
		assert.Equal(t, 2, third.Rank)

		detail, err = s.GetJob("dist")
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusRunning, detail.Job.Status)
		assert.Equal(t, []string{"w2", "w1", "w3"}, detail.Distributed.AllocatedWorkers)
	})

	t.Run("extra claim is rejected cleanly", func(t *testing.T) {
		s := setup(t)
		for _, claim := range []struct{ worker, addr string }{
			{"w2", "10.0.0.2"}, {"w1", "10.0.0.1"}, {"w3", "10.0.0.3"},
		} {
			_, err := s.ClaimDistributed("dist", claim.worker, claim.addr)
			require.NoError(t, err)
		}

		_, err := s.ClaimDistributed("dist", "w4", "10.0.0.4")
		assert.ErrorIs(t, err, ErrJobFullyAllocated)

		worker, err := s.GetWorker("w4")
		require.NoError(t, err)
		assert.Equal(t, 0, worker.ActiveJobs)
	})

	t.Run("re-claim is idempotent and never rewrites the master", func(t *testing.T) {
		s := setup(t)
		_, err := s.ClaimDistributed("dist", "w2", "10.0.0.2")
		require.NoError(t, err)

		again, err := s.ClaimDistributed("dist", "w2", "10.9.9.9")
		require.NoError(t, err)
		assert.Equal(t, 0, again.Rank)
		assert.Equal(t, "10.0.0.2", again.MasterAddress)

		worker, err := s.GetWorker("w2")
		require.NoError(t, err)
		assert.Equal(t, 1, worker.ActiveJobs)
	})

	t.Run("single job has no rank to claim", func(t *testing.T) {
		s := setup(t)
		submitJob(t, s, "single", nil)
		_, err := s.ClaimDistributed("single", "w1", "10.0.0.1")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestReportShardResult(t *testing.T) {
	notifier := &recordingNotifier{}
	clock := newFakeClock()
	s, err := New(Options{Clock: clock, Notifier: notifier})
	require.NoError(t, err)

	registerWorker(t, s, "w1", "kaggle", "Tesla P100", 16)
	registerWorker(t, s, "w2", "kaggle", "Tesla P100", 16)
	submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 2})

	_, err = s.ClaimDistributed("dist", "w1", "10.0.0.1")
	require.NoError(t, err)
	_, err = s.ClaimDistributed("dist", "w2", "10.0.0.2")
	require.NoError(t, err)

	require.NoError(t, s.ReportShardResult("dist", "w1", map[string]interface{}{"loss": 0.5}))

	detail, err := s.GetJob("dist")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, detail.Job.Status)
	assert.Equal(t, 1, detail.Distributed.WorkersCompleted)

	require.NoError(t, s.ReportShardResult("dist", "w2", map[string]interface{}{"loss": 0.3}))

	detail, err = s.GetJob("dist")
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, detail.Job.Status)
	require.NotNil(t, detail.Job.CompletedAt)

	// The job passed through aggregating on its way to completed.
	var seen []constants.JobStatus
	for _, e := range notifier.byType(EventJobStatusChanged) {
		seen = append(seen, e.Status)
	}
	assert.Contains(t, seen, constants.JobStatusAggregating)
	assert.Contains(t, seen, constants.JobStatusCompleted)

	// Both ranks are credited and unloaded.
	for _, id := range []string{"w1", "w2"} {
		worker, err := s.GetWorker(id)
		require.NoError(t, err)
		assert.Equal(t, 0, worker.ActiveJobs)
		assert.Equal(t, 1, worker.TotalJobsCompleted)
	}
	assert.Zero(t, s.OpenAssignments())

	// Late report after completion is rejected.
	assert.ErrorIs(t, s.ReportShardResult("dist", "w1", nil), ErrInvalidTransition)
}

func TestReportJobStatus(t *testing.T) {
	t.Run("rejects invalid transitions", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		submitJob(t, s, "j1", nil)

		assert.ErrorIs(t, s.ReportJobStatus("j1", "COMPLETED", ""), ErrInvalidTransition)
		assert.ErrorIs(t, s.ReportJobStatus("j1", "nonsense", ""), ErrInvalidInput)
		assert.ErrorIs(t, s.ReportJobStatus("ghost", "RUNNING", ""), ErrNotFound)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)
		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		require.NoError(t, s.ReportJobStatus("j1", "FAILED", "out of memory"))
		assert.ErrorIs(t, s.ReportJobStatus("j1", "RUNNING", ""), ErrInvalidTransition)

		detail, err := s.GetJob("j1")
		require.NoError(t, err)
		assert.Equal(t, "out of memory", detail.Job.Error)
	})

	t.Run("failure releases the worker without credit", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)
		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		require.NoError(t, s.ReportJobStatus("j1", "FAILED", "oom"))

		worker, err := s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, 0, worker.ActiveJobs)
		assert.Equal(t, 0, worker.TotalJobsCompleted)
		assert.Equal(t, constants.WorkerStatusIdle, worker.Status)
	})

	t.Run("completion credits the worker", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)
		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		require.NoError(t, s.ReportJobStatus("j1", "COMPLETED", ""))

		worker, err := s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, 1, worker.TotalJobsCompleted)
		assert.Zero(t, s.OpenAssignments())
	})
}

func TestOrphanHandling(t *testing.T) {
	t.Run("unregister orphans the bound job but keeps it running", func(t *testing.T) {
		notifier := &recordingNotifier{}
		s, err := New(Options{Clock: newFakeClock(), Notifier: notifier})
		require.NoError(t, err)
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)
		_, err = s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		require.NoError(t, s.UnregisterWorker("w1"))

		detail, err := s.GetJob("j1")
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusRunning, detail.Job.Status)
		assert.True(t, detail.Job.Orphaned)
		assert.Len(t, notifier.byType(EventJobOrphaned), 1)
	})

	t.Run("eviction orphans distributed ranks", func(t *testing.T) {
		clock := newFakeClock()
		s := newTestScheduler(t, clock)
		registerWorker(t, s, "w1", "kaggle", "", 0)
		registerWorker(t, s, "w2", "kaggle", "", 0)
		submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 2})
		_, err := s.ClaimDistributed("dist", "w1", "10.0.0.1")
		require.NoError(t, err)
		_, err = s.ClaimDistributed("dist", "w2", "10.0.0.2")
		require.NoError(t, err)

		clock.Advance(60 * time.Second)
		s.Heartbeat("w2")
		clock.Advance(61 * time.Second)

		evicted := s.EvictStale()
		assert.Equal(t, []string{"w1"}, evicted)

		detail, err := s.GetJob("dist")
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusRunning, detail.Job.Status)
		assert.Equal(t, []int{0}, detail.Distributed.OrphanedRanks)
	})

	t.Run("orphan detection is lazy on reads", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "", 0)
		submitJob(t, s, "j1", nil)
		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		// Drop the worker behind the tracker's back.
		s.mu.Lock()
		delete(s.reg.workers, "w1")
		s.mu.Unlock()

		detail, err := s.GetJob("j1")
		require.NoError(t, err)
		assert.True(t, detail.Job.Orphaned)
	})
}

func TestDispatchJob(t *testing.T) {
	s := newTestScheduler(t, newFakeClock())
	require.NoError(t, s.SetStrategy(constants.StrategyLeastLoaded))
	registerWorker(t, s, "w1", "colab", "", 0)
	registerWorker(t, s, "w2", "colab", "", 0)
	submitJob(t, s, "j1", nil)
	submitJob(t, s, "j2", nil)
	submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 2})

	first, err := s.DispatchJob("j1")
	require.NoError(t, err)
	second, err := s.DispatchJob("j2")
	require.NoError(t, err)
	assert.NotEqual(t, first.WorkerID, second.WorkerID)

	_, err = s.DispatchJob("j1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.DispatchJob("dist")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetStrategy(t *testing.T) {
	s := newTestScheduler(t, newFakeClock())
	assert.Equal(t, constants.StrategyLeastLoaded, s.StrategyName())

	require.NoError(t, s.SetStrategy(constants.StrategyRoundRobin))
	assert.Equal(t, constants.StrategyRoundRobin, s.StrategyName())

	assert.ErrorIs(t, s.SetStrategy("fifo"), ErrUnknownStrategy)
	assert.Equal(t, constants.StrategyRoundRobin, s.StrategyName())
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(t, clock)
	registerWorker(t, s, "w1", "colab", "Tesla T4", 16)
	registerWorker(t, s, "w2", "kaggle", "Tesla P100", 16)
	registerWorker(t, s, "w3", "kaggle", "", 0)
	require.NoError(t, s.DisableWorker("w3"))

	submitJob(t, s, "j1", nil)
	submitJob(t, s, "j2", nil)
	_, err := s.ClaimSingle("j1", "w1")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 3, stats.TotalWorkers)
	assert.Equal(t, 3, stats.OnlineWorkers)
	assert.Equal(t, 1, stats.BusyWorkers)
	assert.Equal(t, 1, stats.IdleWorkers)
	assert.Equal(t, 1, stats.DisabledWorkers)
	assert.Equal(t, 2, stats.PlatformCounts["kaggle"])
	assert.Equal(t, 1, stats.GPUInventory["Tesla T4"])
	assert.Equal(t, 1, stats.TotalActiveJobs)
	assert.Equal(t, 1, stats.PendingJobs)
	assert.Equal(t, 1, stats.RunningJobs)
	assert.Equal(t, constants.StrategyLeastLoaded, stats.Strategy)
}

func TestSelectWorkers(t *testing.T) {
	s := newTestScheduler(t, newFakeClock())
	registerWorker(t, s, "w1", "colab", "Tesla T4", 16)
	registerWorker(t, s, "w2", "kaggle", "Tesla V100", 32)
	registerWorker(t, s, "w3", "local", "", 0)

	selected, err := s.SelectWorkers(&model.ResourceRequirements{RequiresGPU: true}, 2)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "w2", selected[0].ID)
	assert.Equal(t, "w1", selected[1].ID)

	_, err = s.SelectWorkers(&model.ResourceRequirements{RequiresGPU: true}, 3)
	assert.ErrorIs(t, err, ErrInsufficientWorkers)
}

func TestWorkerRestartLoadAccounting(t *testing.T) {
	t.Run("releasing an orphaned rank leaves the restarted worker's load alone", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "kaggle", "Tesla T4", 16)
		registerWorker(t, s, "w2", "kaggle", "Tesla T4", 16)
		submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 2})

		_, err := s.ClaimDistributed("dist", "w1", "10.0.0.1")
		require.NoError(t, err)
		_, err = s.ClaimDistributed("dist", "w2", "10.0.0.2")
		require.NoError(t, err)

		// w1 restarts: its rank is orphaned, the fresh record holds no load
		registerWorker(t, s, "w1", "kaggle", "Tesla T4", 16)
		w1, err := s.GetWorker("w1")
		require.NoError(t, err)
		require.Equal(t, 0, w1.ActiveJobs)

		// The restarted worker picks up an unrelated single job
		submitJob(t, s, "j2", nil)
		_, err = s.ClaimSingle("j2", "w1")
		require.NoError(t, err)

		require.NoError(t, s.CancelJob("dist", "worker lost"))

		w1, err = s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, 1, w1.ActiveJobs)
		assert.Equal(t, 1, s.OpenAssignments())

		w2, err := s.GetWorker("w2")
		require.NoError(t, err)
		assert.Equal(t, 0, w2.ActiveJobs)
	})

	t.Run("a reclaimed rank is released normally", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "kaggle", "Tesla T4", 16)
		registerWorker(t, s, "w2", "kaggle", "Tesla T4", 16)
		submitJob(t, s, "dist", &model.SubmitJobRequest{IsDistributed: true, NumWorkers: 2})

		_, err := s.ClaimDistributed("dist", "w1", "10.0.0.1")
		require.NoError(t, err)
		_, err = s.ClaimDistributed("dist", "w2", "10.0.0.2")
		require.NoError(t, err)

		registerWorker(t, s, "w1", "kaggle", "Tesla T4", 16)
		resp, err := s.ClaimDistributed("dist", "w1", "10.0.0.9")
		require.NoError(t, err)
		assert.Equal(t, 0, resp.Rank)

		w1, err := s.GetWorker("w1")
		require.NoError(t, err)
		require.Equal(t, 1, w1.ActiveJobs)

		require.NoError(t, s.CancelJob("dist", ""))
		w1, err = s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, 0, w1.ActiveJobs)
	})

	t.Run("orphaned single binding neither unloads nor credits on completion", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "Tesla T4", 16)
		submitJob(t, s, "j1", nil)
		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		// Restart: j1 is orphaned, the fresh record starts at zero
		registerWorker(t, s, "w1", "colab", "Tesla T4", 16)

		submitJob(t, s, "j2", nil)
		_, err = s.ClaimSingle("j2", "w1")
		require.NoError(t, err)

		require.NoError(t, s.ReportJobStatus("j1", "COMPLETED", ""))

		w1, err := s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, 1, w1.ActiveJobs)
		assert.Equal(t, 0, w1.TotalJobsCompleted)
		assert.Equal(t, 1, s.OpenAssignments())
	})

	t.Run("orphaned single binding release on failure", func(t *testing.T) {
		s := newTestScheduler(t, newFakeClock())
		registerWorker(t, s, "w1", "colab", "Tesla T4", 16)
		submitJob(t, s, "j1", nil)
		_, err := s.ClaimSingle("j1", "w1")
		require.NoError(t, err)

		registerWorker(t, s, "w1", "colab", "Tesla T4", 16)

		submitJob(t, s, "j2", nil)
		_, err = s.ClaimSingle("j2", "w1")
		require.NoError(t, err)

		require.NoError(t, s.ReportJobStatus("j1", "FAILED", "worker restarted"))

		w1, err := s.GetWorker("w1")
		require.NoError(t, err)
		assert.Equal(t, 1, w1.ActiveJobs)
		assert.Equal(t, 1, s.OpenAssignments())
	})
}
