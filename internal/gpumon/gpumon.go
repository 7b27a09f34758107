package gpumon

import (
	"bytes"
	"context"
	"encoding/xml"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sample is one nvidia-smi reading.
type Sample struct {
	Name        string
	UtilPercent int
	MemUsedMB   float64
	MemTotalMB  float64
	PowerWatt   float64
}

// Stats aggregates the samples collected over a run.
type Stats struct {
	Name           string
	Samples        int
	UtilAvgPercent float64
	UtilMaxPercent int
	VRAMUsedMaxMB  float64
	VRAMTotalMB    float64
	PowerMaxWatt   float64
}

// Available reports whether nvidia-smi is on PATH.
func Available() bool {
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// Monitor samples GPU utilization and memory on a ticker while a benchmark
// runs. It only observes; device selection is the operator's input.
type Monitor struct {
	device   int
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	name    string
	count   int
	utilSum int
	utilMax int
	memMax  float64
	memTot  float64
	pwrMax  float64
}

func New(device int, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{device: device, interval: interval, logger: logger}
}

// Run samples until the context is cancelled. Intended to run in its own
// goroutine alongside the sweep.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sampleCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			s, err := sample(sampleCtx, m.device)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Debug("nvidia-smi sample failed", "error", err)
				}
				continue
			}
			m.record(s)
		}
	}
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = s.Name
	m.count++
	m.utilSum += s.UtilPercent
	if s.UtilPercent > m.utilMax {
		m.utilMax = s.UtilPercent
	}
	if s.MemUsedMB > m.memMax {
		m.memMax = s.MemUsedMB
	}
	if s.MemTotalMB > 0 {
		m.memTot = s.MemTotalMB
	}
	if s.PowerWatt > m.pwrMax {
		m.pwrMax = s.PowerWatt
	}
}

// Stats returns the aggregated readings; false when nothing was sampled.
func (m *Monitor) Stats() (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return Stats{}, false
	}
	return Stats{
		Name:           m.name,
		Samples:        m.count,
		UtilAvgPercent: float64(m.utilSum) / float64(m.count),
		UtilMaxPercent: m.utilMax,
		VRAMUsedMaxMB:  m.memMax,
		VRAMTotalMB:    m.memTot,
		PowerMaxWatt:   m.pwrMax,
	}, true
}

// Minimal XML mapping for nvidia-smi -x -q.
type smiLog struct {
	XMLName xml.Name `xml:"nvidia_smi_log"`
	GPU     smiGPU   `xml:"gpu"`
}

type smiGPU struct {
	ProductName string `xml:"product_name"`
	Util        struct {
		GPU string `xml:"gpu_util"`
	} `xml:"utilization"`
	FBMem struct {
		Total string `xml:"total"`
		Used  string `xml:"used"`
	} `xml:"fb_memory_usage"`
	Power struct {
		Draw string `xml:"power_draw"`
	} `xml:"power_readings"`
}

func sample(ctx context.Context, device int) (Sample, error) {
	cmd := exec.CommandContext(ctx, "nvidia-smi", "-x", "-q", "-i", strconv.Itoa(device))
	b, err := cmd.Output()
	if err != nil {
		return Sample{}, err
	}
	return parseSMILog(b)
}

func parseSMILog(b []byte) (Sample, error) {
	var log smiLog
	if err := xml.NewDecoder(bytes.NewReader(b)).Decode(&log); err != nil {
		return Sample{}, err
	}
	gpu := log.GPU
	return Sample{
		Name:        strings.TrimSpace(gpu.ProductName),
		UtilPercent: int(scalar(gpu.Util.GPU, "%")),
		MemUsedMB:   scalar(gpu.FBMem.Used, "MiB"),
		MemTotalMB:  scalar(gpu.FBMem.Total, "MiB"),
		PowerWatt:   scalar(gpu.Power.Draw, "W"),
	}, nil
}

// scalar parses values like "66 %", "1720 MiB" or "38.91 W".
func scalar(s, unit string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), unit))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return v
		}
	}
	return 0
}
