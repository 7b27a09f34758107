package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Encoder struct {
		// Backend selects the ffmpeg video encoder: "nvenc" or "x264".
		Backend     string `yaml:"backend"`
		Binary      string `yaml:"binary"`
		Width       int    `yaml:"width"`
		Height      int    `yaml:"height"`
		Framerate   int    `yaml:"framerate"`
		BitrateKbps int    `yaml:"bitrate_kbps"`
		GOPSize     int    `yaml:"gop_size"`
	} `yaml:"encoder"`

	Sweep struct {
		Levels          []int `yaml:"levels"`
		DurationSeconds int   `yaml:"duration_seconds"`
		GraceSeconds    int   `yaml:"grace_seconds"`
		StaggerMs       int   `yaml:"stagger_ms"`
		CooldownSeconds int   `yaml:"cooldown_seconds"`
		// MaxSessions models a known driver session ceiling. 0 means
		// unlimited: the prober never caps concurrency on its own.
		MaxSessions int `yaml:"max_sessions"`
	} `yaml:"sweep"`

	GPU struct {
		Monitor    bool `yaml:"monitor"`
		Device     int  `yaml:"device"`
		IntervalMs int  `yaml:"interval_ms"`
	} `yaml:"gpu"`

	Report struct {
		Label string `yaml:"label"`
		Out   string `yaml:"out"`
	} `yaml:"report"`
}

// Default returns the configuration used when no file is given. The encode
// settings mirror a 1080p24 low-latency streaming profile.
func Default() Config {
	var c Config

	c.Encoder.Backend = "nvenc"
	c.Encoder.Binary = "ffmpeg"
	c.Encoder.Width = 1920
	c.Encoder.Height = 1080
	c.Encoder.Framerate = 24
	c.Encoder.BitrateKbps = 5000
	c.Encoder.GOPSize = 60

	c.Sweep.Levels = []int{1, 2, 4, 8, 12, 16, 24, 32}
	c.Sweep.DurationSeconds = 20
	c.Sweep.GraceSeconds = 10
	c.Sweep.StaggerMs = 50
	c.Sweep.CooldownSeconds = 2

	c.GPU.Device = 0
	c.GPU.IntervalMs = 500

	return c
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

func (c Config) SweepDuration() time.Duration {
	return time.Duration(c.Sweep.DurationSeconds) * time.Second
}

func (c Config) SweepGrace() time.Duration {
	return time.Duration(c.Sweep.GraceSeconds) * time.Second
}

func (c Config) SweepStagger() time.Duration {
	return time.Duration(c.Sweep.StaggerMs) * time.Millisecond
}

func (c Config) SweepCooldown() time.Duration {
	return time.Duration(c.Sweep.CooldownSeconds) * time.Second
}

func (c Config) GPUInterval() time.Duration {
	return time.Duration(c.GPU.IntervalMs) * time.Millisecond
}
