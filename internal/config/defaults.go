package config

import "time"

const (
	// DefaultStepTimeout bounds a step that declares no timeout.
	DefaultStepTimeout = 30 * time.Second
	// DefaultWorkers bounds concurrent operations inside a parallel step.
	DefaultWorkers = 4
	// DefaultSetupAttempts is how often a node setup is tried.
	DefaultSetupAttempts = 3
	// DefaultSetupBackoff is the delay before the first setup retry.
	DefaultSetupBackoff = 500 * time.Millisecond
)

// DefaultVolatileFields are excluded from replay comparison for every
// driver: HTTP dates and connection bookkeeping headers.
var DefaultVolatileFields = []string{
	"request.headers.Date",
	"response.headers.Date",
	"response.headers.Age",
	"response.headers.Etag",
	"response.headers.Last-Modified",
	"response.headers.X-Request-Id",
}

// Default returns the default run configuration.
func Default() Run {
	return Run{
		Mode:           "live",
		StepTimeout:    DefaultStepTimeout,
		Parallel:       1,
		Workers:        DefaultWorkers,
		SetupAttempts:  DefaultSetupAttempts,
		SetupBackoff:   DefaultSetupBackoff,
		VolatileFields: append([]string(nil), DefaultVolatileFields...),
	}
}
