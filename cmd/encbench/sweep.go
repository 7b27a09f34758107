package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"encbench/internal/config"
	"encbench/internal/encoder"
	"encbench/internal/gpumon"
	"encbench/internal/monitor"
	"encbench/internal/sweep"
	"encbench/internal/sysinfo"
	"encbench/pkg/benchreport"
)

var (
	sweepBackend     string
	sweepLevels      []int
	sweepDuration    int
	sweepGrace       int
	sweepStagger     int
	sweepCooldown    int
	sweepMaxSessions int
	sweepGPUMonitor  bool
	sweepGPUDevice   int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Find the maximum number of sustained real-time encode streams",
	Long: `Probe increasing concurrency levels, encoding N parallel synthetic
streams per level, until one level can no longer hold every stream at
real-time (>= 1.0x) speed.

The sweep stops at the first failing level; every attempted level stays in
the report so the degradation curve is visible.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepBackend, "encoder", "", "encoder backend: nvenc or x264")
	sweepCmd.Flags().IntSliceVar(&sweepLevels, "levels", nil, "concurrency levels to probe (default 1,2,4,8,12,16,24,32)")
	sweepCmd.Flags().IntVar(&sweepDuration, "duration", 0, "media seconds encoded per job (default 20)")
	sweepCmd.Flags().IntVar(&sweepGrace, "grace", 0, "per-job overrun budget in seconds (default 10)")
	sweepCmd.Flags().IntVar(&sweepStagger, "stagger", 0, "delay between job launches in milliseconds (default 50)")
	sweepCmd.Flags().IntVar(&sweepCooldown, "cooldown", -1, "pause between levels in seconds (default 2)")
	sweepCmd.Flags().IntVar(&sweepMaxSessions, "max-sessions", 0, "known driver session ceiling, 0 = unlimited")
	sweepCmd.Flags().BoolVar(&sweepGPUMonitor, "gpu-monitor", false, "sample nvidia-smi during the sweep")
	sweepCmd.Flags().IntVar(&sweepGPUDevice, "gpu-device", 0, "GPU device index for monitoring")
}

func sweepConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("encoder") {
		cfg.Encoder.Backend = sweepBackend
	}
	if cmd.Flags().Changed("levels") {
		cfg.Sweep.Levels = sweepLevels
	}
	if cmd.Flags().Changed("duration") {
		cfg.Sweep.DurationSeconds = sweepDuration
	}
	if cmd.Flags().Changed("grace") {
		cfg.Sweep.GraceSeconds = sweepGrace
	}
	if cmd.Flags().Changed("stagger") {
		cfg.Sweep.StaggerMs = sweepStagger
	}
	if cmd.Flags().Changed("cooldown") {
		cfg.Sweep.CooldownSeconds = sweepCooldown
	}
	if cmd.Flags().Changed("max-sessions") {
		cfg.Sweep.MaxSessions = sweepMaxSessions
	}
	if cmd.Flags().Changed("gpu-monitor") {
		cfg.GPU.Monitor = sweepGPUMonitor
	}
	if cmd.Flags().Changed("gpu-device") {
		cfg.GPU.Device = sweepGPUDevice
	}
	return cfg, nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := sweepConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger()

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}

	gate := monitor.NewSessionGate(int64(cfg.Sweep.MaxSessions))
	supervisor := sweep.NewSupervisor(adapter,
		sweep.WithGrace(cfg.SweepGrace()),
		sweep.WithStagger(cfg.SweepStagger()),
		sweep.WithGate(gate),
		sweep.WithLogger(logger),
	)
	search, err := sweep.NewSearch(supervisor, sweep.Options{
		Levels:   cfg.Sweep.Levels,
		Duration: cfg.SweepDuration(),
		Cooldown: cfg.SweepCooldown(),
	}, logger)
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

	logger.Info("starting capacity sweep",
		"encoder", adapter.Name(),
		"levels", cfg.Sweep.Levels,
		"duration", cfg.SweepDuration(),
	)

	outcome, runErr := search.Run(ctx)
	monCancel()
	// Let the last in-flight sample land before reading aggregates.
	time.Sleep(10 * time.Millisecond)

	if runErr != nil && len(outcome.History) == 0 {
		return runErr
	}
	if runErr != nil {
		logger.Warn("sweep aborted, writing partial report", "error", runErr)
	}

	env := sysinfo.Collect(cfg.GPU.Device, cfg.Encoder.Backend == encoder.BackendNVENC)
	rep := benchreport.AssembleSweep(outcome, reportLabel(cfg), envRecord(env), benchreport.Params{
		Encoder:         cfg.Encoder.Backend,
		Width:           cfg.Encoder.Width,
		Height:          cfg.Encoder.Height,
		Framerate:       cfg.Encoder.Framerate,
		BitrateKbps:     cfg.Encoder.BitrateKbps,
		DurationSeconds: cfg.SweepDuration().Seconds(),
		GraceSeconds:    cfg.SweepGrace().Seconds(),
		CooldownSeconds: cfg.SweepCooldown().Seconds(),
		Levels:          cfg.Sweep.Levels,
		MaxSessions:     cfg.Sweep.MaxSessions,
	})
	rep.PeakSessions = gate.Metrics().Peak
	if gpuMon != nil {
		if stats, ok := gpuMon.Stats(); ok {
			rep.SetGPUStats(stats)
		}
	}

	if err := benchreport.WriteJSON(rep, reportOut(cfg)); err != nil {
		return err
	}

	logger.Info("sweep complete",
		"max_sustained", outcome.MaxSustained,
		"ceiling_reached", outcome.CeilingReached,
		"batches", len(outcome.History),
	)
	return runErr
}

func envRecord(e sysinfo.Env) benchreport.Env {
	return benchreport.Env{
		OS:            e.OS,
		Arch:          e.Arch,
		CPUModel:      e.CPUModel,
		CPUNumLogical: e.CPULogical,
		GPUName:       e.GPUName,
	}
}
