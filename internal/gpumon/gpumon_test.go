package gpumon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smiFixture = `<?xml version="1.0" ?>
<nvidia_smi_log>
  <gpu id="00000000:01:00.0">
    <product_name>NVIDIA RTX 4000 Ada Generation</product_name>
    <utilization>
      <gpu_util>66 %</gpu_util>
      <memory_util>12 %</memory_util>
    </utilization>
    <fb_memory_usage>
      <total>20475 MiB</total>
      <used>1720 MiB</used>
      <free>18755 MiB</free>
    </fb_memory_usage>
    <power_readings>
      <power_draw>38.91 W</power_draw>
    </power_readings>
  </gpu>
</nvidia_smi_log>
`

func TestParseSMILog(t *testing.T) {
	s, err := parseSMILog([]byte(smiFixture))
	require.NoError(t, err)

	assert.Equal(t, "NVIDIA RTX 4000 Ada Generation", s.Name)
	assert.Equal(t, 66, s.UtilPercent)
	assert.Equal(t, 1720.0, s.MemUsedMB)
	assert.Equal(t, 20475.0, s.MemTotalMB)
	assert.InDelta(t, 38.91, s.PowerWatt, 1e-9)
}

func TestParseSMILogInvalid(t *testing.T) {
	_, err := parseSMILog([]byte("nvidia-smi: command error"))
	assert.Error(t, err)
}

func TestScalarVariants(t *testing.T) {
	assert.Equal(t, 66.0, scalar("66 %", "%"))
	assert.Equal(t, 66.0, scalar("66%", "%"))
	assert.Equal(t, 1720.0, scalar("1720 MiB", "MiB"))
	assert.Equal(t, 0.0, scalar("N/A", "W"))
}

func TestMonitorAggregation(t *testing.T) {
	m := New(0, 0, nil)

	_, ok := m.Stats()
	assert.False(t, ok, "no samples yet")

	m.record(Sample{Name: "GPU", UtilPercent: 40, MemUsedMB: 1000, MemTotalMB: 20475, PowerWatt: 30})
	m.record(Sample{Name: "GPU", UtilPercent: 80, MemUsedMB: 4000, MemTotalMB: 20475, PowerWatt: 90})
	m.record(Sample{Name: "GPU", UtilPercent: 60, MemUsedMB: 2000, MemTotalMB: 20475, PowerWatt: 60})

	st, ok := m.Stats()
	require.True(t, ok)
	assert.Equal(t, 3, st.Samples)
	assert.Equal(t, 60.0, st.UtilAvgPercent)
	assert.Equal(t, 80, st.UtilMaxPercent)
	assert.Equal(t, 4000.0, st.VRAMUsedMaxMB)
	assert.Equal(t, 20475.0, st.VRAMTotalMB)
	assert.Equal(t, 90.0, st.PowerMaxWatt)
}
