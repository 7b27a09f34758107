package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

const (
	BackendNVENC = "nvenc"
	BackendX264  = "x264"
)

// Settings describe the synthetic encode workload. The source is ffmpeg's
// lavfi testsrc2 generator, so no input media is needed.
type Settings struct {
	Backend     string
	Binary      string
	Width       int
	Height      int
	Framerate   int
	BitrateKbps int
	GOPSize     int
}

// FFmpegAdapter encodes a synthetic test pattern through ffmpeg and scrapes
// the achieved speed multiplier from its progress output.
type FFmpegAdapter struct {
	settings Settings
	logger   *slog.Logger
}

func NewFFmpeg(settings Settings, logger *slog.Logger) (*FFmpegAdapter, error) {
	switch settings.Backend {
	case BackendNVENC, BackendX264:
	default:
		return nil, fmt.Errorf("unsupported encoder backend %q", settings.Backend)
	}
	if settings.Binary == "" {
		settings.Binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegAdapter{settings: settings, logger: logger}, nil
}

func (a *FFmpegAdapter) Name() string {
	return "ffmpeg/" + a.settings.Backend
}

func (a *FFmpegAdapter) Encode(ctx context.Context, job Job) (Result, error) {
	args := a.buildArgs(job.Duration)

	cmd := exec.CommandContext(ctx, a.settings.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	a.logger.Debug("starting encode", "job", job.Index, "backend", a.settings.Backend, "media_duration", job.Duration)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return Result{Elapsed: elapsed}, fmt.Errorf("encode job %d: %w", job.Index, ctx.Err())
		}
		if errors.Is(err, exec.ErrNotFound) || sessionExhausted(stderr.String()) {
			return Result{Elapsed: elapsed}, fmt.Errorf("encode job %d: %s: %w", job.Index, firstError(stderr.String()), ErrSessionUnavailable)
		}
		return Result{Elapsed: elapsed}, fmt.Errorf("encode job %d: ffmpeg: %w: %s", job.Index, err, firstError(stderr.String()))
	}

	speed, frames, ok := parseProgress(stderr.String())
	if !ok || speed <= 0 {
		return Result{Elapsed: elapsed}, fmt.Errorf("encode job %d: no speed counter in ffmpeg output", job.Index)
	}

	return Result{SpeedFactor: speed, Elapsed: elapsed, Frames: frames}, nil
}

func (a *FFmpegAdapter) buildArgs(media time.Duration) []string {
	src := fmt.Sprintf("testsrc2=size=%dx%d:rate=%d,format=yuv420p",
		a.settings.Width, a.settings.Height, a.settings.Framerate)

	args := []string{
		"-hide_banner", "-benchmark", "-nostdin",
		"-f", "lavfi", "-i", src,
		"-t", strconv.FormatFloat(media.Seconds(), 'f', -1, 64),
	}

	switch a.settings.Backend {
	case BackendNVENC:
		args = append(args,
			"-c:v", "h264_nvenc",
			"-preset", "p1",
			"-tune", "ll",
			"-rc", "cbr",
			"-b:v", fmt.Sprintf("%dk", a.settings.BitrateKbps),
			"-g", strconv.Itoa(a.settings.GOPSize),
		)
	case BackendX264:
		args = append(args,
			"-c:v", "libx264",
			"-refs", "1",
			"-tune", "zerolatency",
			"-coder", "0",
			"-subq", "4",
			"-rc-lookahead", "20",
			"-crf", "23",
		)
	}

	return append(args,
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-f", "null", "-",
	)
}
