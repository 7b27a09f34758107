package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encbench/internal/encoder"
	"encbench/internal/monitor"
)

// fakeAdapter returns programmed speeds and errors per job index.
type fakeAdapter struct {
	mu sync.Mutex

	defaultSpeed float64
	speeds       map[int]float64
	errs         map[int]error
	delay        time.Duration
	honorCtx     bool

	calls []int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Encode(ctx context.Context, job encoder.Job) (encoder.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, job.Index)
	f.mu.Unlock()

	if f.delay > 0 {
		if f.honorCtx {
			select {
			case <-ctx.Done():
				return encoder.Result{}, fmt.Errorf("encode job %d: %w", job.Index, ctx.Err())
			case <-time.After(f.delay):
			}
		} else {
			time.Sleep(f.delay)
		}
	}

	if err, ok := f.errs[job.Index]; ok {
		return encoder.Result{}, err
	}
	speed := f.defaultSpeed
	if s, ok := f.speeds[job.Index]; ok {
		speed = s
	}
	return encoder.Result{SpeedFactor: speed, Elapsed: 10 * time.Millisecond}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSupervisor(a encoder.Adapter, opts ...SupervisorOption) *Supervisor {
	base := []SupervisorOption{WithStagger(0), WithLogger(quietLogger())}
	return NewSupervisor(a, append(base, opts...)...)
}

func TestRunBatchReturnsAllResults(t *testing.T) {
	sup := newTestSupervisor(&fakeAdapter{defaultSpeed: 2.0})

	batch, err := sup.RunBatch(context.Background(), 4, time.Second)
	require.NoError(t, err)

	require.Len(t, batch.Results, 4)
	assert.Equal(t, 4, batch.Concurrency)
	for i, r := range batch.Results {
		assert.Equal(t, i, r.JobIndex)
		assert.True(t, r.Succeeded)
		assert.Equal(t, 2.0, r.SpeedFactor)
	}
	assert.Equal(t, 4, batch.SuccessCount())
	assert.True(t, batch.Passed())
}

func TestRunBatchFoldsJobFailures(t *testing.T) {
	sup := newTestSupervisor(&fakeAdapter{
		defaultSpeed: 3.0,
		errs:         map[int]error{2: errors.New("encode job 2: ffmpeg: exit status 1")},
	})

	batch, err := sup.RunBatch(context.Background(), 4, time.Second)
	require.NoError(t, err, "a single crashed job must not abort the batch")

	require.Len(t, batch.Results, 4)
	failed := batch.Results[2]
	assert.False(t, failed.Succeeded)
	assert.Equal(t, ErrCrashed, failed.ErrorKind)
	assert.Zero(t, failed.SpeedFactor)

	assert.Equal(t, 3, batch.SuccessCount())
	assert.False(t, batch.Passed())
}

func TestRunBatchExactRealTimePasses(t *testing.T) {
	sup := newTestSupervisor(&fakeAdapter{defaultSpeed: 1.0})

	batch, err := sup.RunBatch(context.Background(), 2, time.Second)
	require.NoError(t, err)

	assert.True(t, batch.Passed(), "speed of exactly 1.0 must count as sustained")
}

func TestRunBatchTimeout(t *testing.T) {
	sup := newTestSupervisor(
		&fakeAdapter{defaultSpeed: 2.0, delay: 500 * time.Millisecond, honorCtx: true},
		WithGrace(10*time.Millisecond),
	)

	batch, err := sup.RunBatch(context.Background(), 1, 10*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, batch.Results, 1)
	r := batch.Results[0]
	assert.False(t, r.Succeeded)
	assert.Equal(t, ErrTimeout, r.ErrorKind)
	assert.Equal(t, 0, batch.SuccessCount())
	assert.False(t, batch.Passed())
}

func TestRunBatchHungAdapterStillReturns(t *testing.T) {
	// The adapter ignores its context entirely; the supervisor's own
	// deadline must still terminate the batch.
	sup := newTestSupervisor(
		&fakeAdapter{defaultSpeed: 2.0, delay: time.Second, honorCtx: false},
		WithGrace(10*time.Millisecond),
	)

	start := time.Now()
	batch, err := sup.RunBatch(context.Background(), 2, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.Equal(t, ErrTimeout, r.ErrorKind)
	}
}

func TestRunBatchValidatesInputs(t *testing.T) {
	sup := newTestSupervisor(&fakeAdapter{defaultSpeed: 2.0})

	_, err := sup.RunBatch(context.Background(), 0, time.Second)
	assert.Error(t, err)

	_, err = sup.RunBatch(context.Background(), 2, 0)
	assert.Error(t, err)
}

func TestRunBatchAllUnavailableIsFatal(t *testing.T) {
	sup := newTestSupervisor(&fakeAdapter{
		errs: map[int]error{
			0: fmt.Errorf("encode job 0: %w", encoder.ErrSessionUnavailable),
			1: fmt.Errorf("encode job 1: %w", encoder.ErrSessionUnavailable),
		},
	})

	batch, err := sup.RunBatch(context.Background(), 2, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, encoder.ErrSessionUnavailable)
	// Diagnostics survive the abort.
	require.Len(t, batch.Results, 2)
	for _, r := range batch.Results {
		assert.Equal(t, ErrUnavailable, r.ErrorKind)
	}
}

func TestRunBatchSessionGateCeiling(t *testing.T) {
	gate := monitor.NewSessionGate(2)
	sup := newTestSupervisor(
		&fakeAdapter{defaultSpeed: 2.0, delay: 200 * time.Millisecond, honorCtx: true},
		WithGate(gate),
		WithGrace(time.Second),
	)

	batch, err := sup.RunBatch(context.Background(), 4, 50*time.Millisecond)
	require.NoError(t, err, "partially started batch is not a fatal condition")

	require.Len(t, batch.Results, 4)
	refused := 0
	for _, r := range batch.Results {
		if r.ErrorKind == ErrUnavailable {
			refused++
		}
	}
	assert.Equal(t, 2, refused)
	assert.Equal(t, 2, batch.SuccessCount())
	assert.Equal(t, int64(2), gate.Metrics().Peak)
	assert.Equal(t, int64(0), gate.Metrics().Active, "all sessions released after the batch")
}
