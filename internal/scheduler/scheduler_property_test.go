package scheduler

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"traingrid/internal/model"
)

// schedulerOp is one step of a generated operation sequence.
type schedulerOp struct {
	kind   string
	worker int
	job    int
}

func genOp() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf("register", "unregister", "submit", "claim", "complete", "fail", "evictLoad"),
		gen.IntRange(0, 4),
		gen.IntRange(0, 9),
	).Map(func(values []interface{}) schedulerOp {
		return schedulerOp{
			kind:   values[0].(string),
			worker: values[1].(int),
			job:    values[2].(int),
		}
	})
}

func applyOp(s *Scheduler, op schedulerOp) {
	workerID := fmt.Sprintf("w%d", op.worker)
	jobID := fmt.Sprintf("j%d", op.job)

	switch op.kind {
	case "register":
		s.RegisterWorker(&model.RegisterRequest{WorkerID: workerID, Platform: "local"})
	case "unregister", "evictLoad":
		s.UnregisterWorker(workerID)
	case "submit":
		s.SubmitJob(jobID, &model.SubmitJobRequest{})
	case "claim":
		s.ClaimSingle(jobID, workerID)
	case "complete":
		s.ReportJobStatus(jobID, "COMPLETED", "")
	case "fail":
		s.ReportJobStatus(jobID, "FAILED", "induced")
	}
}

// Load conservation: whatever mix of registrations, claims, completions,
// failures and worker departures is applied, the sum of worker ActiveJobs
// counters never drifts from the number of open assignments to live
// workers.
func TestLoadConservationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("sum of ActiveJobs equals open bindings to live workers", prop.ForAll(
		func(ops []schedulerOp) bool {
			s, err := New(Options{Clock: newFakeClock()})
			if err != nil {
				return false
			}
			for _, op := range ops {
				applyOp(s, op)
			}

			totalLoad := 0
			for _, worker := range s.Workers() {
				totalLoad += worker.ActiveJobs
			}

			// Orphaned bindings carry no load: their worker vanished, and a
			// re-registration starts from a clean counter.
			s.mu.RLock()
			liveBindings := 0
			for jobID, workerID := range s.trk.byJob {
				if _, ok := s.reg.get(workerID); !ok {
					continue
				}
				if job, ok := s.jobs[jobID]; ok && job.Orphaned {
					continue
				}
				liveBindings++
			}
			s.mu.RUnlock()

			return totalLoad == liveBindings
		},
		gen.SliceOf(genOp()),
	))

	properties.Property("load counters never go negative", prop.ForAll(
		func(ops []schedulerOp) bool {
			s, err := New(Options{Clock: newFakeClock()})
			if err != nil {
				return false
			}
			for _, op := range ops {
				applyOp(s, op)
			}
			for _, worker := range s.Workers() {
				if worker.ActiveJobs < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.TestingRun(t)
}

// Rank allocation: however claims interleave, ranks are unique, contiguous
// from zero and capped at the requested world size.
func TestRankAllocationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("ranks are unique and dense", prop.ForAll(
		func(numWorkers int, claimers []int) bool {
			s, err := New(Options{Clock: newFakeClock()})
			if err != nil {
				return false
			}
			for i := 0; i < 8; i++ {
				_, err := s.RegisterWorker(&model.RegisterRequest{
					WorkerID: fmt.Sprintf("w%d", i),
					Platform: "kaggle",
					Address:  fmt.Sprintf("10.0.0.%d", i),
				})
				if err != nil {
					return false
				}
			}
			if _, err := s.SubmitJob("dist", &model.SubmitJobRequest{
				IsDistributed: true,
				NumWorkers:    numWorkers,
			}); err != nil {
				return false
			}

			seen := make(map[int]string)
			for _, claimer := range claimers {
				workerID := fmt.Sprintf("w%d", claimer)
				resp, err := s.ClaimDistributed("dist", workerID, fmt.Sprintf("10.0.0.%d", claimer))
				if err != nil {
					continue // fully allocated
				}
				if resp.Rank < 0 || resp.Rank >= numWorkers {
					return false
				}
				if holder, taken := seen[resp.Rank]; taken && holder != workerID {
					return false
				}
				seen[resp.Rank] = workerID
			}

			// Allocated ranks are dense from zero.
			for rank := 0; rank < len(seen); rank++ {
				if _, ok := seen[rank]; !ok {
					return false
				}
			}
			return len(seen) <= numWorkers
		},
		gen.IntRange(2, 6),
		gen.SliceOf(gen.IntRange(0, 7)),
	))

	properties.TestingRun(t)
}

// The lifecycle automaton never lets a terminal job move again.
func TestTerminalStateProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("terminal states are absorbing", prop.ForAll(
		func(reports []string) bool {
			s, err := New(Options{Clock: newFakeClock()})
			if err != nil {
				return false
			}
			if _, err := s.SubmitJob("j1", &model.SubmitJobRequest{}); err != nil {
				return false
			}

			terminal := false
			for _, status := range reports {
				err := s.ReportJobStatus("j1", status, "")
				if terminal && err == nil {
					return false
				}
				if err == nil {
					detail, getErr := s.GetJob("j1")
					if getErr != nil {
						return false
					}
					terminal = detail.Job.Status.Terminal()
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("PENDING", "RUNNING", "AGGREGATING", "COMPLETED", "FAILED", "CANCELLED")),
	))

	properties.TestingRun(t)
}
