package sysinfo

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Env captures the machine a report was produced on.
type Env struct {
	OS         string
	Arch       string
	CPUModel   string
	CPULogical int
	GPUName    string
}

// Collect gathers report metadata. The GPU name is looked up only when the
// run actually involved the GPU.
func Collect(gpuDevice int, wantGPU bool) Env {
	e := Env{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUModel:   cpuModel(),
		CPULogical: runtime.NumCPU(),
	}
	if wantGPU {
		e.GPUName = gpuName(gpuDevice)
	}
	return e
}

func cpuModel() string {
	if runtime.GOOS == "darwin" {
		if out, err := exec.Command("sysctl", "-n", "machdep.cpu.brand_string").Output(); err == nil {
			return strings.TrimSpace(string(out))
		}
	}
	if runtime.GOOS == "linux" {
		if f, err := os.Open("/proc/cpuinfo"); err == nil {
			defer f.Close()
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				if line := sc.Text(); strings.HasPrefix(line, "model name") {
					if _, model, ok := strings.Cut(line, ":"); ok {
						return strings.TrimSpace(model)
					}
				}
			}
		}
	}
	return runtime.GOARCH + " CPU"
}

func gpuName(device int) string {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return ""
	}
	out, err := exec.Command("nvidia-smi", "--query-gpu=name,index", "--format=csv,noheader").Output()
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for _, ln := range lines {
		name, idxStr, ok := strings.Cut(ln, ",")
		if !ok {
			continue
		}
		if idx, err := strconv.Atoi(strings.TrimSpace(idxStr)); err == nil && idx == device {
			return strings.TrimSpace(name)
		}
	}
	if len(lines) > 0 {
		name, _, _ := strings.Cut(lines[0], ",")
		return strings.TrimSpace(name)
	}
	return ""
}
