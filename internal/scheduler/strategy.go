package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"traingrid/internal/model"
	"traingrid/pkg/constants"
)

// Strategy picks one worker for a job from an eligible snapshot. It returns
// nil when the snapshot is empty and never errors; selection failures are
// for the caller to interpret.
type Strategy interface {
	Name() string
	Select(eligible []*model.Worker, req *model.ResourceRequirements) *model.Worker
}

// newStrategy builds a strategy by name.
func newStrategy(name string) (Strategy, error) {
	switch name {
	case constants.StrategyRoundRobin:
		return &roundRobinStrategy{}, nil
	case constants.StrategyLeastLoaded:
		return &leastLoadedStrategy{}, nil
	case constants.StrategyGPUPriority:
		return &gpuPriorityStrategy{}, nil
	case constants.StrategyPlatformSpecific:
		return &platformSpecificStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// roundRobinStrategy cycles through the eligible set with a monotonic
// cursor. The cursor persists across calls and is not reset when the pool
// changes, so fairness is approximate under churn.
type roundRobinStrategy struct {
	cursor int
}

func (s *roundRobinStrategy) Name() string { return constants.StrategyRoundRobin }

func (s *roundRobinStrategy) Select(eligible []*model.Worker, _ *model.ResourceRequirements) *model.Worker {
	if len(eligible) == 0 {
		return nil
	}
	worker := eligible[s.cursor%len(eligible)]
	s.cursor++
	return worker
}

// leastLoadedStrategy picks the worker with the fewest active jobs. Ties
// break to the first match in snapshot order.
type leastLoadedStrategy struct{}

func (s *leastLoadedStrategy) Name() string { return constants.StrategyLeastLoaded }

func (s *leastLoadedStrategy) Select(eligible []*model.Worker, _ *model.ResourceRequirements) *model.Worker {
	var best *model.Worker
	for _, worker := range eligible {
		if best == nil || worker.ActiveJobs < best.ActiveJobs {
			best = worker
		}
	}
	return best
}

// gpuTiers ranks accelerator families. Unknown GPU names score the floor.
var gpuTiers = []struct {
	match string
	tier  float64
}{
	{"H100", 10},
	{"A100", 9},
	{"V100", 8},
	{"L4", 7},
	{"A10", 6},
	{"RTX 4090", 6},
	{"RTX 3090", 5},
	{"T4", 5},
	{"P100", 4},
	{"P4", 3},
	{"K80", 2},
}

const gpuTierFloor = 1.0

func gpuTier(name string) float64 {
	upper := strings.ToUpper(name)
	for _, entry := range gpuTiers {
		if strings.Contains(upper, entry.match) {
			return entry.tier
		}
	}
	return gpuTierFloor
}

// platformBonus rewards platforms that historically offer redundant or
// stable hardware.
func platformBonus(p constants.Platform) float64 {
	switch p {
	case constants.PlatformKaggle, constants.PlatformAWS:
		return 2
	case constants.PlatformLocal:
		return 1
	default:
		return 0
	}
}

// gpuScore is the ranking function shared by GPU-priority selection and
// multi-worker allocation.
func gpuScore(worker *model.Worker) float64 {
	return gpuTier(worker.GPU.Name) +
		worker.GPU.MemoryGB/10 -
		float64(worker.ActiveJobs)*2 +
		platformBonus(worker.Platform)
}

// gpuPriorityStrategy scores workers by accelerator quality, memory, load
// and platform stability. When the job requires a GPU but no GPU worker is
// eligible, it scores the full set anyway: availability wins over
// strictness, the job is never failed just for lacking a GPU worker.
type gpuPriorityStrategy struct{}

func (s *gpuPriorityStrategy) Name() string { return constants.StrategyGPUPriority }

func (s *gpuPriorityStrategy) Select(eligible []*model.Worker, req *model.ResourceRequirements) *model.Worker {
	if len(eligible) == 0 {
		return nil
	}

	candidates := eligible
	if req != nil && req.RequiresGPU {
		gpuWorkers := filterGPU(eligible)
		if len(gpuWorkers) > 0 {
			candidates = gpuWorkers
		}
	}

	var best *model.Worker
	bestScore := 0.0
	for _, worker := range candidates {
		score := gpuScore(worker)
		if best == nil || score > bestScore {
			best = worker
			bestScore = score
		}
	}
	return best
}

// platformSpecificStrategy honors a preferred-platform hint when that
// platform has eligible workers, and otherwise applies runtime and
// priority heuristics before falling back to least-loaded.
type platformSpecificStrategy struct {
	leastLoaded leastLoadedStrategy
	gpuPriority gpuPriorityStrategy
}

func (s *platformSpecificStrategy) Name() string { return constants.StrategyPlatformSpecific }

func (s *platformSpecificStrategy) Select(eligible []*model.Worker, req *model.ResourceRequirements) *model.Worker {
	if len(eligible) == 0 {
		return nil
	}
	if req == nil {
		return s.leastLoaded.Select(eligible, nil)
	}

	if req.PreferredPlatform != "" {
		preferred := filterPlatform(eligible, constants.ParsePlatform(req.PreferredPlatform))
		if len(preferred) > 0 {
			return s.leastLoaded.Select(preferred, req)
		}
	}

	if req.EstimatedTimeMinutes > constants.LongJobMinutes {
		stable := filterPlatform(eligible, constants.PlatformLongSessionStable)
		if len(stable) > 0 {
			return s.leastLoaded.Select(stable, req)
		}
	}

	if req.Priority == constants.PriorityHigh {
		return s.gpuPriority.Select(eligible, req)
	}

	return s.leastLoaded.Select(eligible, req)
}

// selectN picks count workers for a multi-worker job, ranked by GPU score
// descending. All-or-nothing: if fewer than count workers are eligible
// (after the GPU filter, when required) it allocates none.
func selectN(eligible []*model.Worker, req *model.ResourceRequirements, count int) ([]*model.Worker, error) {
	candidates := eligible
	if req != nil && req.RequiresGPU {
		candidates = filterGPU(eligible)
	}
	if len(candidates) < count {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientWorkers, count, len(candidates))
	}

	ranked := make([]*model.Worker, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return gpuScore(ranked[i]) > gpuScore(ranked[j])
	})
	return ranked[:count], nil
}

func filterGPU(workers []*model.Worker) []*model.Worker {
	out := make([]*model.Worker, 0, len(workers))
	for _, w := range workers {
		if w.GPU.Available {
			out = append(out, w)
		}
	}
	return out
}

func filterPlatform(workers []*model.Worker, platform constants.Platform) []*model.Worker {
	out := make([]*model.Worker, 0, len(workers))
	for _, w := range workers {
		if w.Platform == platform {
			out = append(out, w)
		}
	}
	return out
}
