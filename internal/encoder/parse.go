package encoder

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	speedRe = regexp.MustCompile(`speed=\s*(\d+\.?\d*)x`)
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
)

// parseProgress extracts the final speed multiplier and frame count from
// ffmpeg's stderr. ffmpeg rewrites the progress line repeatedly; the last
// occurrence holds the totals.
func parseProgress(out string) (speed float64, frames int, ok bool) {
	speedMatches := speedRe.FindAllStringSubmatch(out, -1)
	if len(speedMatches) == 0 {
		return 0, 0, false
	}
	speed, err := strconv.ParseFloat(speedMatches[len(speedMatches)-1][1], 64)
	if err != nil {
		return 0, 0, false
	}
	if frameMatches := frameRe.FindAllStringSubmatch(out, -1); len(frameMatches) > 0 {
		frames, _ = strconv.Atoi(frameMatches[len(frameMatches)-1][1])
	}
	return speed, frames, true
}

// sessionExhaustionMarkers are the stderr fragments NVENC emits when the
// driver refuses another encode session or no device is usable.
var sessionExhaustionMarkers = []string{
	"OpenEncodeSessionEx failed",
	"No capable devices found",
	"Cannot load nvcuda",
	"No NVENC capable devices found",
	"incompatible client key",
}

func sessionExhausted(out string) bool {
	for _, marker := range sessionExhaustionMarkers {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}

// firstError returns the first non-progress stderr line, keeping wrapped
// errors short enough to log.
func firstError(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "frame=") {
			continue
		}
		return line
	}
	return "no output"
}
