package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"encbench/internal/config"
	"encbench/internal/encoder"
	"encbench/internal/gpumon"
	"encbench/internal/sysinfo"
	"encbench/pkg/benchreport"
)

var (
	encodeBackend    string
	encodeDuration   int
	encodeRepeats    int
	encodeWarmup     bool
	encodeGPUMonitor bool
	encodeGPUDevice  int
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Benchmark a single encode stream",
	Long: `Encode one synthetic stream with the configured backend and report how
fast it ran relative to real time. Useful as a baseline before a sweep.`,
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringVar(&encodeBackend, "encoder", "", "encoder backend: nvenc or x264")
	encodeCmd.Flags().IntVar(&encodeDuration, "duration", 60, "media seconds to encode per run")
	encodeCmd.Flags().IntVar(&encodeRepeats, "repeats", 3, "number of measured runs")
	encodeCmd.Flags().BoolVar(&encodeWarmup, "warmup", true, "run one unmeasured warm-up encode first")
	encodeCmd.Flags().BoolVar(&encodeGPUMonitor, "gpu-monitor", false, "sample nvidia-smi during the runs")
	encodeCmd.Flags().IntVar(&encodeGPUDevice, "gpu-device", 0, "GPU device index for monitoring")
}

func encodeConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("encoder") {
		cfg.Encoder.Backend = encodeBackend
	}
	if cmd.Flags().Changed("gpu-monitor") {
		cfg.GPU.Monitor = encodeGPUMonitor
	}
	if cmd.Flags().Changed("gpu-device") {
		cfg.GPU.Device = encodeGPUDevice
	}
	return cfg, nil
}

func runEncode(cmd *cobra.Command, _ []string) error {
	cfg, err := encodeConfig(cmd)
	if err != nil {
		return err
	}
	if encodeRepeats < 1 {
		return fmt.Errorf("repeats must be at least 1, got %d", encodeRepeats)
	}
	logger := newLogger()

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gpuMon *gpumon.Monitor
	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()
	if cfg.GPU.Monitor {
		if gpumon.Available() {
			gpuMon = gpumon.New(cfg.GPU.Device, cfg.GPUInterval(), logger)
			go gpuMon.Run(monCtx)
		} else {
			logger.Warn("gpu monitoring requested but nvidia-smi not found")
		}
	}

	duration := time.Duration(encodeDuration) * time.Second
	logger.Info("starting encode benchmark",
		"encoder", adapter.Name(),
		"duration", duration,
		"repeats", encodeRepeats,
	)

	// No hard deadline here: a slow CPU encode is a valid measurement, not
	// a hang.
	if encodeWarmup {
		logger.Info("warm-up run")
		if _, err := adapter.Encode(ctx, encoder.Job{Index: -1, Duration: duration}); err != nil {
			return fmt.Errorf("warm-up: %w", err)
		}
	}

	runs := make([]benchreport.RunMetrics, 0, encodeRepeats)
	for i := 0; i < encodeRepeats; i++ {
		res, err := adapter.Encode(ctx, encoder.Job{Index: i, Duration: duration})
		if err != nil {
			return fmt.Errorf("run %d: %w", i+1, err)
		}
		logger.Info("run finished",
			"run", i+1,
			"speed", res.SpeedFactor,
			"elapsed", res.Elapsed,
			"frames", res.Frames,
		)
		runs = append(runs, benchreport.RunMetrics{
			ElapsedSeconds: res.Elapsed.Seconds(),
			SpeedFactor:    res.SpeedFactor,
			Frames:         res.Frames,
		})
	}
	monCancel()
	time.Sleep(10 * time.Millisecond)

	env := sysinfo.Collect(cfg.GPU.Device, cfg.Encoder.Backend == encoder.BackendNVENC)
	rep := benchreport.AssembleEncode(runs, reportLabel(cfg), envRecord(env), benchreport.Params{
		Encoder:         cfg.Encoder.Backend,
		Width:           cfg.Encoder.Width,
		Height:          cfg.Encoder.Height,
		Framerate:       cfg.Encoder.Framerate,
		BitrateKbps:     cfg.Encoder.BitrateKbps,
		DurationSeconds: duration.Seconds(),
		Repeats:         encodeRepeats,
		Warmup:          encodeWarmup,
	})
	if gpuMon != nil {
		if stats, ok := gpuMon.Stats(); ok {
			rep.SetGPUStats(stats)
		}
	}

	if err := benchreport.WriteJSON(rep, reportOut(cfg)); err != nil {
		return err
	}

	logger.Info("encode benchmark complete",
		"avg_speed", rep.AvgSpeedFactor,
		"avg_elapsed_seconds", rep.AvgElapsedSeconds,
	)
	return nil
}
