package benchreport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encbench/internal/gpumon"
	"encbench/internal/sweep"
)

func sampleOutcome() sweep.Outcome {
	passing := sweep.BatchResult{
		Concurrency: 2,
		Results: []sweep.JobResult{
			{JobIndex: 0, SpeedFactor: 2.4, Elapsed: 8 * time.Second, Succeeded: true},
			{JobIndex: 1, SpeedFactor: 2.6, Elapsed: 8 * time.Second, Succeeded: true},
		},
	}
	failing := sweep.BatchResult{
		Concurrency: 4,
		Results: []sweep.JobResult{
			{JobIndex: 0, SpeedFactor: 1.1, Elapsed: 18 * time.Second, Succeeded: true},
			{JobIndex: 1, SpeedFactor: 1.0, Elapsed: 20 * time.Second, Succeeded: true},
			{JobIndex: 2, Succeeded: false, ErrorKind: sweep.ErrTimeout, ErrorDetail: "context deadline exceeded"},
			{JobIndex: 3, Succeeded: false, ErrorKind: sweep.ErrCrashed},
		},
	}
	return sweep.Outcome{History: []sweep.BatchResult{passing, failing}, MaxSustained: 2}
}

func TestAssembleSweep(t *testing.T) {
	rep := AssembleSweep(sampleOutcome(), "lab-box", Env{OS: "linux", Arch: "amd64"}, Params{Encoder: "nvenc"})

	assert.Equal(t, Version, rep.Version)
	assert.Equal(t, "lab-box", rep.Label)
	assert.Equal(t, 2, rep.MaxSustained)
	assert.False(t, rep.CeilingReached)
	require.Len(t, rep.Batches, 2)

	first := rep.Batches[0]
	assert.Equal(t, 2, first.Concurrency)
	assert.Equal(t, 2, first.SuccessCount)
	assert.True(t, first.Passed)
	assert.InDelta(t, 2.5, first.AvgSpeed, 1e-9)
	assert.InDelta(t, 2.4, first.MinSpeed, 1e-9)

	second := rep.Batches[1]
	assert.False(t, second.Passed)
	assert.Equal(t, 2, second.SuccessCount)
	require.Len(t, second.Jobs, 4, "failing jobs stay in the record")
	assert.Equal(t, "timeout: context deadline exceeded", second.Jobs[2].Error)
	assert.Equal(t, "crashed", second.Jobs[3].Error)

	require.NotNil(t, rep.SpeedHistogram)
	assert.NotEmpty(t, rep.SpeedHistogram.Counts)
}

func TestAssembleSweepAllFailedWritesZeroStats(t *testing.T) {
	out := sweep.Outcome{History: []sweep.BatchResult{{
		Concurrency: 1,
		Results:     []sweep.JobResult{{JobIndex: 0, ErrorKind: sweep.ErrTimeout}},
	}}}

	rep := AssembleSweep(out, "", Env{}, Params{})

	require.Len(t, rep.Batches, 1)
	assert.Zero(t, rep.Batches[0].AvgSpeed, "NaN stats must serialize as 0")
	assert.Zero(t, rep.Batches[0].MinSpeed)
	assert.Equal(t, 0, rep.MaxSustained)
	assert.Nil(t, rep.SpeedHistogram, "no successful job, no distribution")
}

func TestSetGPUStats(t *testing.T) {
	rep := AssembleSweep(sampleOutcome(), "", Env{}, Params{})
	rep.SetGPUStats(gpumon.Stats{Name: "NVIDIA T4", Samples: 12, UtilAvgPercent: 72.5, UtilMaxPercent: 99})

	require.NotNil(t, rep.GPU)
	assert.Equal(t, "NVIDIA T4", rep.GPU.Name)
	assert.Equal(t, "NVIDIA T4", rep.Env.GPUName, "env GPU name backfilled from the monitor")
}

func TestAssembleEncodeAverages(t *testing.T) {
	runs := []RunMetrics{
		{ElapsedSeconds: 6.0, SpeedFactor: 10.0, Frames: 1440},
		{ElapsedSeconds: 8.0, SpeedFactor: 7.5, Frames: 1440},
	}
	rep := AssembleEncode(runs, "lab-box", Env{}, Params{Encoder: "x264", Repeats: 2})

	assert.Equal(t, 7.0, rep.AvgElapsedSeconds)
	assert.InDelta(t, 8.75, rep.AvgSpeedFactor, 1e-9)
	assert.Len(t, rep.Runs, 2)
}

func TestWriteJSONCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "nested", "sweep.json")
	rep := AssembleSweep(sampleOutcome(), "lab-box", Env{OS: "linux"}, Params{Encoder: "nvenc"})

	require.NoError(t, WriteJSON(rep, path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var got SweepReport
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, rep.MaxSustained, got.MaxSustained)
	assert.Equal(t, "lab-box", got.Label)
	require.Len(t, got.Batches, 2)
}
