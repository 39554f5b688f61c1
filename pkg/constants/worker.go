package constants

// Worker status constants
type WorkerStatus string

const (
	WorkerStatusIdle     WorkerStatus = "IDLE"     // Registered, no active jobs
	WorkerStatusBusy     WorkerStatus = "BUSY"     // Executing at least one job
	WorkerStatusDisabled WorkerStatus = "DISABLED" // Administratively excluded from selection
)

func (s WorkerStatus) String() string {
	return string(s)
}

// Platform tags for worker hosts
type Platform string

const (
	PlatformColab   Platform = "colab"
	PlatformKaggle  Platform = "kaggle"
	PlatformAWS     Platform = "aws"
	PlatformLocal   Platform = "local"
	PlatformUnknown Platform = "unknown"
)

func (p Platform) String() string {
	return string(p)
}

// ParsePlatform maps arbitrary caller input to a known platform tag.
func ParsePlatform(s string) Platform {
	switch Platform(s) {
	case PlatformColab, PlatformKaggle, PlatformAWS, PlatformLocal:
		return Platform(s)
	default:
		return PlatformUnknown
	}
}
