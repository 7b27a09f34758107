package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"encbench/internal/encoder"
	"encbench/internal/monitor"
)

const (
	DefaultGrace   = 10 * time.Second
	DefaultStagger = 50 * time.Millisecond
)

// BatchRunner runs all jobs of one concurrency level and returns once every
// job has reached a terminal state.
type BatchRunner interface {
	RunBatch(ctx context.Context, concurrency int, duration time.Duration) (BatchResult, error)
}

type SupervisorOption func(*Supervisor)

// WithGrace sets the per-job overrun budget on top of the media duration.
func WithGrace(grace time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.grace = grace }
}

// WithStagger sets the delay between consecutive job launches.
func WithStagger(stagger time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.stagger = stagger }
}

// WithGate attaches an encoder session gate for accounting and an optional
// configured session ceiling.
func WithGate(gate *monitor.SessionGate) SupervisorOption {
	return func(s *Supervisor) { s.gate = gate }
}

func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger }
}

// Supervisor launches K adapter invocations in parallel and collects exactly
// K results. Jobs that crash, time out, or cannot start are folded into
// failed results rather than dropped.
type Supervisor struct {
	adapter encoder.Adapter
	grace   time.Duration
	stagger time.Duration
	gate    *monitor.SessionGate
	logger  *slog.Logger
}

func NewSupervisor(adapter encoder.Adapter, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		adapter: adapter,
		grace:   DefaultGrace,
		stagger: DefaultStagger,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunBatch blocks until all jobs reach a terminal state. The returned error
// is non-nil only when not a single job could start, which signals a broken
// environment rather than reached capacity.
func (s *Supervisor) RunBatch(ctx context.Context, concurrency int, duration time.Duration) (BatchResult, error) {
	if concurrency < 1 {
		return BatchResult{}, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	if duration <= 0 {
		return BatchResult{}, fmt.Errorf("duration must be positive, got %s", duration)
	}

	batch := BatchResult{
		Concurrency: concurrency,
		Results:     make([]JobResult, concurrency),
	}

	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		if i > 0 && s.stagger > 0 {
			time.Sleep(s.stagger)
		}
		g.Go(func() error {
			// Failures fold into the job's result slot.
			batch.Results[i] = s.runJob(ctx, i, duration)
			return nil
		})
	}
	_ = g.Wait()

	if s.noneStarted(batch) {
		return batch, fmt.Errorf("no encoder session could start at concurrency %d: %w",
			concurrency, encoder.ErrSessionUnavailable)
	}

	s.logger.Info("batch finished",
		"concurrency", concurrency,
		"success", batch.SuccessCount(),
		"passed", batch.Passed(),
		"avg_speed", batch.AvgSpeed(),
		"min_speed", batch.MinSpeed(),
	)
	return batch, nil
}

func (s *Supervisor) noneStarted(b BatchResult) bool {
	return lo.EveryBy(b.Results, func(r JobResult) bool { return r.ErrorKind == ErrUnavailable })
}

// runJob enforces the hard per-job deadline (duration + grace) regardless of
// adapter behavior: a hung encoder cannot stall the batch past the deadline.
func (s *Supervisor) runJob(parent context.Context, index int, duration time.Duration) JobResult {
	if s.gate != nil && !s.gate.TryAcquire() {
		return JobResult{
			JobIndex:    index,
			ErrorKind:   ErrUnavailable,
			ErrorDetail: "session ceiling reached before start",
		}
	}

	ctx, cancel := context.WithTimeout(parent, duration+s.grace)
	defer cancel()

	type attempt struct {
		res encoder.Result
		err error
	}
	done := make(chan attempt, 1)
	go func() {
		res, err := s.adapter.Encode(ctx, encoder.Job{Index: index, Duration: duration})
		if s.gate != nil {
			s.gate.Release()
		}
		done <- attempt{res, err}
	}()

	select {
	case a := <-done:
		return s.classify(index, a.res, a.err)
	case <-ctx.Done():
		// Cancelling the job context kills the underlying encoder process.
		// The batch does not wait for its teardown.
		return JobResult{
			JobIndex:    index,
			Elapsed:     duration + s.grace,
			ErrorKind:   ErrTimeout,
			ErrorDetail: ctx.Err().Error(),
		}
	}
}

func (s *Supervisor) classify(index int, res encoder.Result, err error) JobResult {
	jr := JobResult{JobIndex: index, Elapsed: res.Elapsed}

	switch {
	case err == nil && res.SpeedFactor > 0:
		jr.SpeedFactor = res.SpeedFactor
		jr.Succeeded = true
	case err == nil:
		jr.ErrorKind = ErrCrashed
		jr.ErrorDetail = "no speed factor reported"
	case errors.Is(err, context.DeadlineExceeded):
		jr.ErrorKind = ErrTimeout
		jr.ErrorDetail = err.Error()
	case errors.Is(err, encoder.ErrSessionUnavailable):
		jr.ErrorKind = ErrUnavailable
		jr.ErrorDetail = err.Error()
	default:
		jr.ErrorKind = ErrCrashed
		jr.ErrorDetail = err.Error()
	}

	if !jr.Succeeded {
		s.logger.Warn("job failed", "job", index, "kind", jr.ErrorKind, "detail", jr.ErrorDetail)
	}
	return jr
}
