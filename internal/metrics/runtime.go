package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const runtimeMetricsFileName = "runtime_metrics.json"

var latencyBucketUpperBoundsMs = []int64{
	10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000,
}

// RuntimeSnapshot contains aggregated decision, executor and notification metrics.
type RuntimeSnapshot struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Decisions map[string]int64 `json:"decisions"`
	Executor  ExecutorStats    `json:"executor"`
	Notify    NotifyStats      `json:"notify"`
}

// ExecutorStats tracks calls into the executor.
type ExecutorStats struct {
	Total             int64 `json:"total"`
	Errors            int64 `json:"errors"`
	Timeouts          int64 `json:"timeouts"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`
	MaxLatencyMs      int64 `json:"max_latency_ms"`
	LastLatencyMs     int64 `json:"last_latency_ms"`
	P95ProxyLatencyMs int64 `json:"p95_proxy_latency_ms"`
}

// ErrorRatio returns errors/total in [0,1].
func (t ExecutorStats) ErrorRatio() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.Errors) / float64(t.Total)
}

// TimeoutRatio returns timeouts/total in [0,1].
func (t ExecutorStats) TimeoutRatio() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.Timeouts) / float64(t.Total)
}

// AvgLatencyMs returns average latency in milliseconds.
func (t ExecutorStats) AvgLatencyMs() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.TotalLatencyMs) / float64(t.Total)
}

// NotifyStats tracks pending-approval notifications.
type NotifyStats struct {
	Attempts int64 `json:"attempts"`
	Failures int64 `json:"failures"`
}

// FailureRatio returns failures/attempts in [0,1].
func (c NotifyStats) FailureRatio() float64 {
	if c.Attempts <= 0 {
		return 0
	}
	return float64(c.Failures) / float64(c.Attempts)
}

// HasData reports whether any runtime metrics were recorded.
func (s RuntimeSnapshot) HasData() bool {
	return len(s.Decisions) > 0 || s.Executor.Total > 0 || s.Notify.Attempts > 0
}

// TotalDecisions sums the per-decision counters.
func (s RuntimeSnapshot) TotalDecisions() int64 {
	var total int64
	for _, n := range s.Decisions {
		total += n
	}
	return total
}

// RuntimeMetrics records metrics and, when a state dir is set, persists them
// after every update. A nil *RuntimeMetrics records nothing.
type RuntimeMetrics struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	snap    RuntimeSnapshot
	buckets []int64

	// writeMu serializes snapshot files so the newest state is written last.
	writeMu sync.Mutex
}

// NewRuntimeMetrics creates a recorder persisting to <stateDir>/runtime_metrics.json.
// An empty stateDir keeps metrics in memory only.
func NewRuntimeMetrics(stateDir string) *RuntimeMetrics {
	return &RuntimeMetrics{
		path:    runtimeMetricsPath(stateDir),
		now:     time.Now,
		buckets: make([]int64, len(latencyBucketUpperBoundsMs)+1),
	}
}

// Snapshot returns a copy of the in-memory snapshot.
func (m *RuntimeMetrics) Snapshot() RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

func (m *RuntimeMetrics) copyLocked() RuntimeSnapshot {
	out := m.snap
	out.Decisions = maps.Clone(m.snap.Decisions)
	return out
}

// RecordDecision counts one audit decision.
func (m *RuntimeMetrics) RecordDecision(decision string) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = m.now().UTC()
	if m.snap.Decisions == nil {
		m.snap.Decisions = make(map[string]int64)
	}
	m.snap.Decisions[decision]++
	snapshot := m.copyLocked()
	m.mu.Unlock()

	return snapshot, m.persist()
}

// RecordExecution updates executor metrics.
func (m *RuntimeMetrics) RecordExecution(duration time.Duration, runErr error) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	latencyMs := duration.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}

	m.mu.Lock()
	m.snap.UpdatedAt = m.now().UTC()
	m.snap.Executor.Total++
	m.snap.Executor.TotalLatencyMs += latencyMs
	m.snap.Executor.LastLatencyMs = latencyMs
	if latencyMs > m.snap.Executor.MaxLatencyMs {
		m.snap.Executor.MaxLatencyMs = latencyMs
	}
	if runErr != nil {
		m.snap.Executor.Errors++
		if isTimeoutError(runErr) {
			m.snap.Executor.Timeouts++
		}
	}

	m.buckets[latencyBucketIndex(latencyMs)]++
	m.snap.Executor.P95ProxyLatencyMs = p95ProxyFromBuckets(m.buckets, m.snap.Executor.Total)

	snapshot := m.copyLocked()
	m.mu.Unlock()

	return snapshot, m.persist()
}

// RecordNotification updates notification metrics.
func (m *RuntimeMetrics) RecordNotification(success bool) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = m.now().UTC()
	m.snap.Notify.Attempts++
	if !success {
		m.snap.Notify.Failures++
	}
	snapshot := m.copyLocked()
	m.mu.Unlock()

	return snapshot, m.persist()
}

// persist writes the current state, which may already include updates made
// after the caller's own.
func (m *RuntimeMetrics) persist() error {
	if m.path == "" {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return persistRuntimeSnapshot(m.path, m.Snapshot())
}

// ReadRuntimeSnapshot reads the persisted snapshot from stateDir.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadRuntimeSnapshot(stateDir string) (RuntimeSnapshot, error) {
	path := runtimeMetricsPath(stateDir)
	if path == "" {
		return RuntimeSnapshot{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeSnapshot{}, nil
		}
		return RuntimeSnapshot{}, fmt.Errorf("read runtime metrics: %w", err)
	}

	var snap RuntimeSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return RuntimeSnapshot{}, fmt.Errorf("decode runtime metrics: %w", err)
	}
	return snap, nil
}

func runtimeMetricsPath(stateDir string) string {
	if strings.TrimSpace(stateDir) == "" {
		return ""
	}
	return filepath.Join(stateDir, runtimeMetricsFileName)
}

func persistRuntimeSnapshot(path string, snapshot RuntimeSnapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create runtime metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode runtime metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), runtimeMetricsFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create runtime metrics temp file: %w", err)
	}
	tempPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write runtime metrics temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close runtime metrics temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("chmod runtime metrics temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename runtime metrics file: %w", err)
	}
	return nil
}

func latencyBucketIndex(latencyMs int64) int {
	for i, upper := range latencyBucketUpperBoundsMs {
		if latencyMs <= upper {
			return i
		}
	}
	return len(latencyBucketUpperBoundsMs)
}

func p95ProxyFromBuckets(buckets []int64, total int64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(latencyBucketUpperBoundsMs) {
			return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
		}
		return latencyBucketUpperBoundsMs[i]
	}
	return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
}

func isTimeoutError(runErr error) bool {
	if errors.Is(runErr, context.DeadlineExceeded) {
		return true
	}
	lowered := strings.ToLower(runErr.Error())
	return strings.Contains(lowered, "deadline exceeded") ||
		strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "timed out")
}
