package sweep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStats(t *testing.T) {
	b := batchOf(4, []float64{2.0, 1.0, 0.5, 0})

	// 0.5x completed but did not sustain real time; 0 failed outright.
	assert.Equal(t, 2, b.SuccessCount())
	assert.False(t, b.Passed())

	// Averages cover every completed job, including the sub-real-time one.
	assert.InDelta(t, (2.0+1.0+0.5)/3, b.AvgSpeed(), 1e-9)
	assert.Equal(t, 0.5, b.MinSpeed())
}

func TestBatchStatsEmptySuccessSet(t *testing.T) {
	b := batchOf(2, []float64{0, 0})

	assert.Equal(t, 0, b.SuccessCount())
	assert.False(t, b.Passed())
	assert.True(t, math.IsNaN(b.AvgSpeed()))
	assert.True(t, math.IsNaN(b.MinSpeed()))
}

func TestSustainedBoundaryInclusive(t *testing.T) {
	assert.True(t, JobResult{Succeeded: true, SpeedFactor: 1.0}.Sustained())
	assert.False(t, JobResult{Succeeded: true, SpeedFactor: 0.999}.Sustained())
	assert.False(t, JobResult{Succeeded: false, SpeedFactor: 5.0}.Sustained())
}
