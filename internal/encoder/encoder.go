package encoder

import (
	"context"
	"errors"
	"time"
)

// ErrSessionUnavailable marks a job that could not obtain an encoder session
// at all: the driver refused a new hardware session, the device is missing,
// or the encoder binary is not installed.
var ErrSessionUnavailable = errors.New("encoder session unavailable")

// Job describes one encode workload within a concurrent batch.
type Job struct {
	// Index is the 0-based position of the job within its batch.
	Index int
	// Duration is the amount of media to synthesize and encode.
	Duration time.Duration
}

// Result is the outcome of a completed encode.
type Result struct {
	// SpeedFactor is the ratio of encoded media duration to wall-clock time.
	// 1.0 is real-time.
	SpeedFactor float64
	Elapsed     time.Duration
	Frames      int
}

// Adapter runs a single encode workload. Implementations must be safe for
// concurrent use with distinct job indexes and must honor the context
// deadline, reclaiming the underlying workload on cancellation.
type Adapter interface {
	Name() string
	Encode(ctx context.Context, job Job) (Result, error)
}
