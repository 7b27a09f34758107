package sweep

import (
	"math"
	"time"

	"github.com/samber/lo"
)

// RealTimeThreshold is the speed factor a job must sustain to count toward a
// batch pass. The boundary is inclusive: exactly 1.0x passes.
const RealTimeThreshold = 1.0

type ErrorKind string

const (
	ErrTimeout     ErrorKind = "timeout"
	ErrCrashed     ErrorKind = "crashed"
	ErrUnavailable ErrorKind = "unavailable"
)

// JobResult is the terminal outcome of one concurrent encode attempt.
type JobResult struct {
	JobIndex    int           `json:"job_index"`
	SpeedFactor float64       `json:"speed_factor"`
	Elapsed     time.Duration `json:"elapsed"`
	Succeeded   bool          `json:"succeeded"`
	ErrorKind   ErrorKind     `json:"error,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
}

// Sustained reports whether the job completed at real-time speed or better.
func (r JobResult) Sustained() bool {
	return r.Succeeded && r.SpeedFactor >= RealTimeThreshold
}

// BatchResult is the outcome for one tested concurrency level. Results always
// holds exactly Concurrency entries, one per job index.
type BatchResult struct {
	Concurrency int
	Results     []JobResult
}

// SuccessCount is the number of jobs that sustained real-time throughput.
func (b BatchResult) SuccessCount() int {
	return lo.CountBy(b.Results, JobResult.Sustained)
}

// Passed applies the strict batch policy: every job must sustain >= 1.0x.
func (b BatchResult) Passed() bool {
	return b.SuccessCount() == b.Concurrency
}

func (b BatchResult) succeeded() []JobResult {
	return lo.Filter(b.Results, func(r JobResult, _ int) bool { return r.Succeeded })
}

// AvgSpeed is the mean speed factor over jobs that completed, NaN when none
// did.
func (b BatchResult) AvgSpeed() float64 {
	done := b.succeeded()
	if len(done) == 0 {
		return math.NaN()
	}
	sum := lo.SumBy(done, func(r JobResult) float64 { return r.SpeedFactor })
	return sum / float64(len(done))
}

// MinSpeed is the slowest completed job's speed factor, NaN when none
// completed.
func (b BatchResult) MinSpeed() float64 {
	done := b.succeeded()
	if len(done) == 0 {
		return math.NaN()
	}
	slowest := lo.MinBy(done, func(a, b JobResult) bool { return a.SpeedFactor < b.SpeedFactor })
	return slowest.SpeedFactor
}

// Outcome is the state of one completed (or aborted) sweep.
type Outcome struct {
	// History holds every attempted batch in order, including the failing
	// one, so the degradation curve stays visible.
	History []BatchResult
	// MaxSustained is the largest concurrency level whose batch passed, 0 if
	// none did.
	MaxSustained int
	// CeilingReached is set when every configured level passed; the true
	// capacity is then only known as a lower bound.
	CeilingReached bool
}
