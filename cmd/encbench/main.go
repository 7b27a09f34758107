package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"encbench/internal/config"
	"encbench/internal/encoder"
)

var (
	cfgPath string
	label   string
	outPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "encbench",
	Short: "Video encode benchmark harness",
	Long: `encbench measures video encoding performance on this machine using
ffmpeg and a synthetic 1080p test source.

It measures:
- Single-run encode speed (GPU NVENC or CPU x264)
- Maximum number of simultaneous real-time encode streams

Results are written as JSON to stdout or a file; logs go to stderr.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&label, "label", "", "label for this machine/config (e.g. rtx4000-ada)")
	rootCmd.PersistentFlags().StringVar(&outPath, "out", "", "path to write the JSON report (default: stdout)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(encodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.Load(cfgPath)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func buildAdapter(cfg config.Config, logger *slog.Logger) (*encoder.FFmpegAdapter, error) {
	return encoder.NewFFmpeg(encoder.Settings{
		Backend:     cfg.Encoder.Backend,
		Binary:      cfg.Encoder.Binary,
		Width:       cfg.Encoder.Width,
		Height:      cfg.Encoder.Height,
		Framerate:   cfg.Encoder.Framerate,
		BitrateKbps: cfg.Encoder.BitrateKbps,
		GOPSize:     cfg.Encoder.GOPSize,
	}, logger)
}

func reportLabel(cfg config.Config) string {
	if label != "" {
		return label
	}
	return cfg.Report.Label
}

func reportOut(cfg config.Config) string {
	if outPath != "" {
		return outPath
	}
	return cfg.Report.Out
}
