package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultDuration = 20 * time.Second
	DefaultCooldown = 2 * time.Second
)

// DefaultLevels is the concurrency progression probed when none is
// configured.
func DefaultLevels() []int {
	return []int{1, 2, 4, 8, 12, 16, 24, 32}
}

type Options struct {
	// Levels is the strictly increasing sequence of concurrency levels to
	// probe.
	Levels []int
	// Duration is the media duration each job encodes.
	Duration time.Duration
	// Cooldown is the pause between batches, letting thermal and driver
	// state settle before the next level.
	Cooldown time.Duration
}

// Search walks the level sequence batch by batch and stops at the first
// failing level. The walk assumes capacity is monotonic in the level: if K
// streams cannot all sustain real-time, K+1 is not attempted.
type Search struct {
	runner BatchRunner
	opts   Options
	logger *slog.Logger
}

func NewSearch(runner BatchRunner, opts Options, logger *slog.Logger) (*Search, error) {
	if len(opts.Levels) == 0 {
		opts.Levels = DefaultLevels()
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	prev := 0
	for _, level := range opts.Levels {
		if level < 1 {
			return nil, fmt.Errorf("concurrency level must be >= 1, got %d", level)
		}
		if level <= prev {
			return nil, fmt.Errorf("levels must be strictly increasing, got %d after %d", level, prev)
		}
		prev = level
	}

	return &Search{runner: runner, opts: opts, logger: logger}, nil
}

// Run executes the sweep. Batches run strictly one after another. The
// returned Outcome always carries every attempted batch, even when Run also
// returns an error (cancellation between batches or a broken environment).
func (s *Search) Run(ctx context.Context) (Outcome, error) {
	var out Outcome

	for i, level := range s.opts.Levels {
		if i > 0 {
			if err := s.cooldown(ctx); err != nil {
				return out, err
			}
		}

		s.logger.Info("probing concurrency level",
			"level", level, "duration", s.opts.Duration)

		batch, err := s.runner.RunBatch(ctx, level, s.opts.Duration)
		if len(batch.Results) > 0 {
			out.History = append(out.History, batch)
		}
		if err != nil {
			return out, fmt.Errorf("batch at concurrency %d: %w", level, err)
		}

		if !batch.Passed() {
			s.logger.Warn("level failed, stopping sweep",
				"level", level,
				"success", batch.SuccessCount(),
				"max_sustained", out.MaxSustained,
			)
			return out, nil
		}
		out.MaxSustained = level
	}

	// Every configured level passed; true capacity is only bounded below.
	out.CeilingReached = true
	s.logger.Info("sweep reached ceiling without failure",
		"max_sustained", out.MaxSustained)
	return out, nil
}

// cooldown pauses between batches and is the sweep's cancellation point;
// batches themselves are never interrupted mid-flight.
func (s *Search) cooldown(ctx context.Context) error {
	if s.opts.Cooldown <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.Cooldown)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
