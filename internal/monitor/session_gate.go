package monitor

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// SessionMetrics represents encoder session accounting for one run.
type SessionMetrics struct {
	// Active is the number of encode sessions currently in flight.
	Active int64
	// Peak is the highest number of simultaneous sessions observed.
	Peak int64
	// Max is the configured session ceiling; 0 means unlimited.
	Max int64
}

// SessionGate tracks in-flight encoder sessions and, when configured with a
// ceiling, refuses sessions beyond it. The ceiling models a known driver
// limit (consumer NVENC permits a fixed number of sessions); by default the
// gate is unlimited so the capacity probe itself never caps concurrency.
type SessionGate struct {
	sem    *semaphore.Weighted // nil when unlimited
	max    int64
	active atomic.Int64
	peak   atomic.Int64
}

// NewSessionGate creates a gate. maxSessions <= 0 means unlimited.
func NewSessionGate(maxSessions int64) *SessionGate {
	g := &SessionGate{}
	if maxSessions > 0 {
		g.sem = semaphore.NewWeighted(maxSessions)
		g.max = maxSessions
	}
	return g
}

// TryAcquire attempts to claim a session slot without blocking. Returns
// false when the configured ceiling is reached. The caller MUST call
// Release() once the session reaches a terminal state.
func (g *SessionGate) TryAcquire() bool {
	if g.sem != nil && !g.sem.TryAcquire(1) {
		return false
	}
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return true
		}
	}
}

// Release returns a session slot claimed by TryAcquire.
func (g *SessionGate) Release() {
	g.active.Add(-1)
	if g.sem != nil {
		g.sem.Release(1)
	}
}

// Metrics returns current session accounting.
func (g *SessionGate) Metrics() SessionMetrics {
	return SessionMetrics{
		Active: g.active.Load(),
		Peak:   g.peak.Load(),
		Max:    g.max,
	}
}
