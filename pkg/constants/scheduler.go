package constants

import "time"

// Selection strategy names, settable at runtime via the scheduler API.
const (
	StrategyRoundRobin       = "round_robin"
	StrategyLeastLoaded      = "least_loaded"
	StrategyGPUPriority      = "gpu_priority"
	StrategyPlatformSpecific = "platform_specific"
)

const (
	// DefaultOnlineWindow is how recently a worker must have heartbeated
	// to be eligible for selection. Workers outside the window stay
	// registered until DefaultEvictAfter passes, so a flapping worker is
	// skipped by selection but still has time to reconnect.
	DefaultOnlineWindow = 60 * time.Second

	// DefaultEvictAfter is the hard eviction threshold. After this long
	// without a heartbeat the sweep removes the worker entirely.
	DefaultEvictAfter = 120 * time.Second

	// DefaultSweepInterval is how often the eviction sweep runs.
	DefaultSweepInterval = 30 * time.Second

	// DefaultMasterPort is the well-known rendezvous port handed to every
	// rank of a distributed job (torch.distributed convention).
	DefaultMasterPort = 29500

	// LongJobMinutes is the estimated-runtime threshold above which the
	// platform-specific strategy prefers long-session-stable platforms.
	LongJobMinutes = 120
)

// PlatformLongSessionStable is the platform preferred for jobs expected to
// outlive a typical notebook session.
const PlatformLongSessionStable = PlatformAWS
