package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application runtime metrics
type Metrics struct {
	startTime time.Time

	// Request counters
	requestsTotal   uint64
	requestsSuccess uint64
	requestsError   uint64

	// Tracker counters
	pollsTotal   uint64
	fetchErrors  uint64
	commitsTotal uint64
	commitErrors uint64
	deltaDropped uint64

	mu               sync.RWMutex
	latencySum       time.Duration
	latencyCount     uint64
	committedSeconds float64
}

// Global metrics instance
var global = &Metrics{
	startTime: time.Now(),
}

// Get returns the global metrics instance
func Get() *Metrics {
	return global
}

// RecordRequest records a request with status and latency
func (m *Metrics) RecordRequest(status int, latency time.Duration) {
	atomic.AddUint64(&m.requestsTotal, 1)
	if status >= 200 && status < 400 {
		atomic.AddUint64(&m.requestsSuccess, 1)
	} else if status >= 400 {
		atomic.AddUint64(&m.requestsError, 1)
	}

	m.mu.Lock()
	m.latencySum += latency
	m.latencyCount++
	m.mu.Unlock()
}

// RecordPoll counts one tracker poll, successful or not.
func (m *Metrics) RecordPoll() {
	atomic.AddUint64(&m.pollsTotal, 1)
}

// RecordFetchError counts a poll whose snapshot fetch failed.
func (m *Metrics) RecordFetchError() {
	atomic.AddUint64(&m.fetchErrors, 1)
}

// RecordCommit counts a ledger append of the given number of seconds.
func (m *Metrics) RecordCommit(seconds float64) {
	atomic.AddUint64(&m.commitsTotal, 1)

	m.mu.Lock()
	m.committedSeconds += seconds
	m.mu.Unlock()
}

// RecordCommitError counts a ledger append that failed.
func (m *Metrics) RecordCommitError() {
	atomic.AddUint64(&m.commitErrors, 1)
}

// RecordDropped counts a delta rejected by the validity window.
func (m *Metrics) RecordDropped() {
	atomic.AddUint64(&m.deltaDropped, 1)
}

// Snapshot returns current metrics as a map
func (m *Metrics) Snapshot() map[string]any {
	m.mu.RLock()
	avgLatency := float64(0)
	if m.latencyCount > 0 {
		avgLatency = float64(m.latencySum.Milliseconds()) / float64(m.latencyCount)
	}
	committed := m.committedSeconds
	m.mu.RUnlock()

	return map[string]any{
		"uptime_seconds":    time.Since(m.startTime).Seconds(),
		"requests_total":    atomic.LoadUint64(&m.requestsTotal),
		"requests_success":  atomic.LoadUint64(&m.requestsSuccess),
		"requests_error":    atomic.LoadUint64(&m.requestsError),
		"avg_latency_ms":    avgLatency,
		"polls_total":       atomic.LoadUint64(&m.pollsTotal),
		"fetch_errors":      atomic.LoadUint64(&m.fetchErrors),
		"commits_total":     atomic.LoadUint64(&m.commitsTotal),
		"commit_errors":     atomic.LoadUint64(&m.commitErrors),
		"deltas_dropped":    atomic.LoadUint64(&m.deltaDropped),
		"committed_seconds": committed,
	}
}
