package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traingrid/internal/model"
	"traingrid/pkg/constants"
)

func trackerFixture(t *testing.T, workerIDs ...string) (*registry, *tracker) {
	t.Helper()
	reg := newRegistry()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range workerIDs {
		_, err := reg.register(&model.RegisterRequest{WorkerID: id, Platform: "local"}, now)
		require.NoError(t, err)
	}
	return reg, newTracker()
}

func TestTrackerAssign(t *testing.T) {
	t.Run("binds job and bumps load", func(t *testing.T) {
		reg, trk := trackerFixture(t, "w1")

		require.NoError(t, trk.assign(reg, "j1", "w1"))

		worker, _ := reg.get("w1")
		assert.Equal(t, 1, worker.ActiveJobs)
		assert.Equal(t, constants.WorkerStatusBusy, worker.Status)

		bound, ok := trk.workerFor("j1")
		require.True(t, ok)
		assert.Equal(t, "w1", bound)
	})

	t.Run("unknown worker is rejected", func(t *testing.T) {
		reg, trk := trackerFixture(t)
		assert.ErrorIs(t, trk.assign(reg, "j1", "ghost"), ErrUnknownWorker)
		assert.Zero(t, trk.open())
	})

	t.Run("bound job is rejected, even for the same worker", func(t *testing.T) {
		reg, trk := trackerFixture(t, "w1", "w2")
		require.NoError(t, trk.assign(reg, "j1", "w1"))

		assert.ErrorIs(t, trk.assign(reg, "j1", "w2"), ErrAlreadyAssigned)
		assert.ErrorIs(t, trk.assign(reg, "j1", "w1"), ErrAlreadyAssigned)

		// Rejected assignments leave the load untouched.
		worker, _ := reg.get("w1")
		assert.Equal(t, 1, worker.ActiveJobs)
	})
}

func TestTrackerComplete(t *testing.T) {
	t.Run("releases binding and credits completion", func(t *testing.T) {
		reg, trk := trackerFixture(t, "w1")
		require.NoError(t, trk.assign(reg, "j1", "w1"))

		workerID, ok := trk.complete(reg, "j1")
		require.True(t, ok)
		assert.Equal(t, "w1", workerID)

		worker, _ := reg.get("w1")
		assert.Equal(t, 0, worker.ActiveJobs)
		assert.Equal(t, 1, worker.TotalJobsCompleted)
		assert.Equal(t, constants.WorkerStatusIdle, worker.Status)
	})

	t.Run("idempotent for unbound jobs", func(t *testing.T) {
		reg, trk := trackerFixture(t, "w1")
		require.NoError(t, trk.assign(reg, "j1", "w1"))

		_, ok := trk.complete(reg, "j1")
		require.True(t, ok)
		_, ok = trk.complete(reg, "j1")
		assert.False(t, ok)

		worker, _ := reg.get("w1")
		assert.Equal(t, 0, worker.ActiveJobs)
		assert.Equal(t, 1, worker.TotalJobsCompleted)
	})

	t.Run("survives a vanished worker", func(t *testing.T) {
		reg, trk := trackerFixture(t, "w1")
		require.NoError(t, trk.assign(reg, "j1", "w1"))
		require.NoError(t, reg.unregister("w1"))

		workerID, ok := trk.complete(reg, "j1")
		require.True(t, ok)
		assert.Equal(t, "w1", workerID)
		assert.Zero(t, trk.open())
	})
}

func TestTrackerRelease(t *testing.T) {
	reg, trk := trackerFixture(t, "w1")
	require.NoError(t, trk.assign(reg, "j1", "w1"))

	trk.release(reg, "j1")

	// No completion credit for failed or cancelled work.
	worker, _ := reg.get("w1")
	assert.Equal(t, 0, worker.ActiveJobs)
	assert.Equal(t, 0, worker.TotalJobsCompleted)
	assert.Zero(t, trk.open())
}

func TestTrackerLoadConservation(t *testing.T) {
	// Sum of worker ActiveJobs always equals the number of open bindings.
	reg, trk := trackerFixture(t, "w1", "w2")

	conserved := func() bool {
		total := 0
		for _, w := range reg.snapshot() {
			total += w.ActiveJobs
		}
		return total == trk.open()
	}

	require.NoError(t, trk.assign(reg, "j1", "w1"))
	require.NoError(t, trk.assign(reg, "j2", "w1"))
	require.NoError(t, trk.assign(reg, "j3", "w2"))
	assert.True(t, conserved())

	trk.complete(reg, "j2")
	assert.True(t, conserved())

	trk.release(reg, "j3")
	assert.True(t, conserved())

	trk.complete(reg, "j1")
	assert.True(t, conserved())
	assert.Zero(t, trk.open())
}

func TestTrackerJobsFor(t *testing.T) {
	reg, trk := trackerFixture(t, "w1", "w2")
	require.NoError(t, trk.assign(reg, "j3", "w1"))
	require.NoError(t, trk.assign(reg, "j1", "w1"))
	require.NoError(t, trk.assign(reg, "j2", "w2"))

	assert.Equal(t, []string{"j1", "j3"}, trk.jobsFor("w1"))
	assert.Equal(t, []string{"j2"}, trk.jobsFor("w2"))
	assert.Empty(t, trk.jobsFor("w3"))
}
