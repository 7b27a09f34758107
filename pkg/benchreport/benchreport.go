// Package benchreport assembles the structured JSON reports emitted by the
// benchmark commands: one record per probed concurrency level for sweeps,
// and per-run metrics for single-run encodes.
package benchreport

import (
	"fmt"
	"math"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/samber/lo"

	"encbench/internal/gpumon"
	"encbench/internal/sweep"
)

const Version = "1"

type Env struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	CPUModel      string `json:"cpu_model"`
	CPUNumLogical int    `json:"cpu_num_logical"`
	GPUName       string `json:"gpu_name,omitempty"`
}

type Params struct {
	Encoder         string  `json:"encoder"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Framerate       int     `json:"framerate"`
	BitrateKbps     int     `json:"bitrate_kbps,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	GraceSeconds    float64 `json:"grace_seconds,omitempty"`
	CooldownSeconds float64 `json:"cooldown_seconds,omitempty"`
	Levels          []int   `json:"levels,omitempty"`
	MaxSessions     int     `json:"max_sessions,omitempty"`
	Repeats         int     `json:"repeats,omitempty"`
	Warmup          bool    `json:"warmup,omitempty"`
}

type JobRecord struct {
	JobIndex       int     `json:"job_index"`
	SpeedFactor    float64 `json:"speed_factor"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Succeeded      bool    `json:"succeeded"`
	Error          string  `json:"error,omitempty"`
}

type BatchRecord struct {
	Concurrency  int         `json:"concurrency"`
	SuccessCount int         `json:"success_count"`
	AvgSpeed     float64     `json:"avg_speed"`
	MinSpeed     float64     `json:"min_speed"`
	Passed       bool        `json:"passed"`
	Jobs         []JobRecord `json:"jobs"`
}

type GPUStats struct {
	Name           string  `json:"name"`
	Samples        int     `json:"samples"`
	UtilAvgPercent float64 `json:"util_avg_percent"`
	UtilMaxPercent int     `json:"util_max_percent"`
	VRAMUsedMaxMB  float64 `json:"vram_used_max_mb"`
	VRAMTotalMB    float64 `json:"vram_total_mb"`
	PowerMaxWatt   float64 `json:"power_max_watt"`
}

// SweepReport is the archival record of one capacity sweep.
type SweepReport struct {
	Version          string        `json:"version"`
	TimestampRFC3339 string        `json:"timestamp_rfc3339"`
	Label            string        `json:"label,omitempty"`
	Env              Env           `json:"env"`
	Params           Params        `json:"params"`
	Batches          []BatchRecord `json:"batches"`
	MaxSustained     int           `json:"max_sustained"`
	// CeilingReached marks a sweep that never failed: MaxSustained is then
	// only a lower bound on true capacity.
	CeilingReached bool  `json:"ceiling_reached"`
	PeakSessions   int64 `json:"peak_sessions,omitempty"`
	// SpeedHistogram is the distribution of per-job speed factors across
	// the whole sweep, in milli-x units (1000 = real time).
	SpeedHistogram *hdrhistogram.Snapshot `json:"speed_histogram,omitempty"`
	GPU            *GPUStats              `json:"gpu,omitempty"`
}

// speed factors recorded in milli-x: 0.001x .. 1000x at 3 significant figures
const (
	histogramMin = 1
	histogramMax = 1_000_000
)

// AssembleSweep flattens a sweep outcome into its report form. Batch stats
// over an empty success set are NaN in memory; JSON cannot carry NaN, so they
// are written as 0 here.
func AssembleSweep(out sweep.Outcome, label string, env Env, params Params) *SweepReport {
	hist := hdrhistogram.New(histogramMin, histogramMax, 3)

	batches := lo.Map(out.History, func(b sweep.BatchResult, _ int) BatchRecord {
		rec := BatchRecord{
			Concurrency:  b.Concurrency,
			SuccessCount: b.SuccessCount(),
			AvgSpeed:     nanToZero(b.AvgSpeed()),
			MinSpeed:     nanToZero(b.MinSpeed()),
			Passed:       b.Passed(),
			Jobs:         lo.Map(b.Results, jobRecord),
		}
		for _, r := range b.Results {
			if r.Succeeded {
				_ = hist.RecordValue(int64(r.SpeedFactor * 1000))
			}
		}
		return rec
	})

	rep := &SweepReport{
		Version:          Version,
		TimestampRFC3339: time.Now().Format(time.RFC3339),
		Label:            label,
		Env:              env,
		Params:           params,
		Batches:          batches,
		MaxSustained:     out.MaxSustained,
		CeilingReached:   out.CeilingReached,
	}
	if hist.TotalCount() > 0 {
		rep.SpeedHistogram = hist.Export()
	}
	return rep
}

func jobRecord(r sweep.JobResult, _ int) JobRecord {
	rec := JobRecord{
		JobIndex:       r.JobIndex,
		SpeedFactor:    r.SpeedFactor,
		ElapsedSeconds: r.Elapsed.Seconds(),
		Succeeded:      r.Succeeded,
	}
	if r.ErrorKind != "" {
		rec.Error = string(r.ErrorKind)
		if r.ErrorDetail != "" {
			rec.Error = fmt.Sprintf("%s: %s", r.ErrorKind, r.ErrorDetail)
		}
	}
	return rec
}

func gpuStats(st gpumon.Stats) *GPUStats {
	return &GPUStats{
		Name:           st.Name,
		Samples:        st.Samples,
		UtilAvgPercent: st.UtilAvgPercent,
		UtilMaxPercent: st.UtilMaxPercent,
		VRAMUsedMaxMB:  st.VRAMUsedMaxMB,
		VRAMTotalMB:    st.VRAMTotalMB,
		PowerMaxWatt:   st.PowerMaxWatt,
	}
}

// SetGPUStats copies monitor aggregates into the report.
func (r *SweepReport) SetGPUStats(st gpumon.Stats) {
	r.GPU = gpuStats(st)
	if r.Env.GPUName == "" {
		r.Env.GPUName = st.Name
	}
}

// SetGPUStats copies monitor aggregates into the report.
func (r *EncodeReport) SetGPUStats(st gpumon.Stats) {
	r.GPU = gpuStats(st)
	if r.Env.GPUName == "" {
		r.Env.GPUName = st.Name
	}
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// RunMetrics is one measured single-run encode.
type RunMetrics struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	SpeedFactor    float64 `json:"speed_factor"`
	Frames         int     `json:"frames"`
}

// EncodeReport is the archival record of a single-run encode benchmark.
type EncodeReport struct {
	Version           string       `json:"version"`
	TimestampRFC3339  string       `json:"timestamp_rfc3339"`
	Label             string       `json:"label,omitempty"`
	Env               Env          `json:"env"`
	Params            Params       `json:"params"`
	Runs              []RunMetrics `json:"runs"`
	AvgElapsedSeconds float64      `json:"avg_elapsed_seconds"`
	AvgSpeedFactor    float64      `json:"avg_speed_factor"`
	GPU               *GPUStats    `json:"gpu,omitempty"`
}

func AssembleEncode(runs []RunMetrics, label string, env Env, params Params) *EncodeReport {
	rep := &EncodeReport{
		Version:          Version,
		TimestampRFC3339: time.Now().Format(time.RFC3339),
		Label:            label,
		Env:              env,
		Params:           params,
		Runs:             runs,
	}
	if len(runs) > 0 {
		n := float64(len(runs))
		rep.AvgElapsedSeconds = lo.SumBy(runs, func(r RunMetrics) float64 { return r.ElapsedSeconds }) / n
		rep.AvgSpeedFactor = lo.SumBy(runs, func(r RunMetrics) float64 { return r.SpeedFactor }) / n
	}
	return rep
}
