package scheduler

import "time"

// Clock abstracts the time source so heartbeat-window and eviction tests
// can run without real sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall-clock time source used outside tests.
var SystemClock Clock = systemClock{}
