package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRuntimeMetrics_AggregatesExecutorAndNotifyStats(t *testing.T) {
	recorder := NewRuntimeMetrics(t.TempDir())

	snap, err := recorder.RecordExecution(120*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("RecordExecution success error: %v", err)
	}
	if snap.Executor.Total != 1 || snap.Executor.Errors != 0 || snap.Executor.Timeouts != 0 {
		t.Fatalf("unexpected first executor snapshot: %+v", snap.Executor)
	}

	_, _ = recorder.RecordExecution(250*time.Millisecond, errors.New("permission denied"))
	_, _ = recorder.RecordExecution(2*time.Second, context.DeadlineExceeded)
	snap, _ = recorder.RecordExecution(1500*time.Millisecond, errors.New("read timed out"))

	if snap.Executor.Total != 4 {
		t.Fatalf("expected 4 executions, got %d", snap.Executor.Total)
	}
	if snap.Executor.Errors != 3 {
		t.Fatalf("expected 3 executor errors, got %d", snap.Executor.Errors)
	}
	if snap.Executor.Timeouts != 2 {
		t.Fatalf("expected 2 executor timeouts, got %d", snap.Executor.Timeouts)
	}
	if got := snap.Executor.ErrorRatio(); got < 0.74 || got > 0.76 {
		t.Fatalf("expected error ratio about 0.75, got %.4f", got)
	}
	if got := snap.Executor.TimeoutRatio(); got < 0.49 || got > 0.51 {
		t.Fatalf("expected timeout ratio about 0.50, got %.4f", got)
	}
	if snap.Executor.MaxLatencyMs != 2000 || snap.Executor.LastLatencyMs != 1500 {
		t.Fatalf("unexpected latency stats: %+v", snap.Executor)
	}
	if snap.Executor.P95ProxyLatencyMs <= 0 {
		t.Fatalf("expected p95 proxy latency > 0, got %d", snap.Executor.P95ProxyLatencyMs)
	}

	_, _ = recorder.RecordNotification(true)
	_, _ = recorder.RecordNotification(false)
	snap, _ = recorder.RecordNotification(true)

	if snap.Notify.Attempts != 3 || snap.Notify.Failures != 1 {
		t.Fatalf("unexpected notify snapshot: %+v", snap.Notify)
	}
	if got := snap.Notify.FailureRatio(); got < 0.33 || got > 0.34 {
		t.Fatalf("expected notify failure ratio about 0.3333, got %.4f", got)
	}
}

func TestRuntimeMetrics_RecordDecision(t *testing.T) {
	recorder := NewRuntimeMetrics("")

	_, _ = recorder.RecordDecision("ALLOWED")
	_, _ = recorder.RecordDecision("EXECUTED")
	snap, err := recorder.RecordDecision("ALLOWED")
	if err != nil {
		t.Fatalf("RecordDecision error: %v", err)
	}
	if snap.Decisions["ALLOWED"] != 2 || snap.Decisions["EXECUTED"] != 1 {
		t.Fatalf("unexpected decision counters: %+v", snap.Decisions)
	}
	if snap.TotalDecisions() != 3 {
		t.Fatalf("expected 3 decisions, got %d", snap.TotalDecisions())
	}

	snap.Decisions["ALLOWED"] = 100
	if recorder.Snapshot().Decisions["ALLOWED"] != 2 {
		t.Fatal("expected snapshots to be isolated from the recorder")
	}
}

func TestRuntimeMetrics_ReadRuntimeSnapshot(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	recorder := NewRuntimeMetrics(stateDir)
	if _, err := recorder.RecordExecution(99*time.Millisecond, nil); err != nil {
		t.Fatalf("RecordExecution error: %v", err)
	}
	if _, err := recorder.RecordNotification(false); err != nil {
		t.Fatalf("RecordNotification error: %v", err)
	}
	if _, err := recorder.RecordDecision("BLOCKED"); err != nil {
		t.Fatalf("RecordDecision error: %v", err)
	}

	snap, err := ReadRuntimeSnapshot(stateDir)
	if err != nil {
		t.Fatalf("ReadRuntimeSnapshot error: %v", err)
	}
	if snap.Executor.Total != 1 || snap.Notify.Attempts != 1 || snap.Notify.Failures != 1 {
		t.Fatalf("unexpected loaded snapshot: %+v", snap)
	}
	if snap.Decisions["BLOCKED"] != 1 {
		t.Fatalf("expected persisted decision counter, got %+v", snap.Decisions)
	}
}

func TestRuntimeMetrics_ConcurrentPersistKeepsNewestSnapshot(t *testing.T) {
	stateDir := t.TempDir()
	recorder := NewRuntimeMetrics(stateDir)

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := recorder.RecordDecision("ALLOWED"); err != nil {
				errs <- err
			}
			if _, err := recorder.RecordExecution(5*time.Millisecond, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent record error: %v", err)
	}

	snap, err := ReadRuntimeSnapshot(stateDir)
	if err != nil {
		t.Fatalf("ReadRuntimeSnapshot error: %v", err)
	}
	if snap.Decisions["ALLOWED"] != workers || snap.Executor.Total != workers {
		t.Fatalf("expected persisted snapshot to hold all %d updates, got %+v", workers, snap)
	}

	entries, err := os.ReadDir(stateDir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != runtimeMetricsFileName {
		t.Fatalf("expected only %s in state dir, got %v", runtimeMetricsFileName, entries)
	}
}

func TestReadRuntimeSnapshot_MissingOrDisabled(t *testing.T) {
	snap, err := ReadRuntimeSnapshot(t.TempDir())
	if err != nil || snap.HasData() {
		t.Fatalf("expected empty snapshot for missing file, got %+v err=%v", snap, err)
	}
	snap, err = ReadRuntimeSnapshot("")
	if err != nil || snap.HasData() {
		t.Fatalf("expected empty snapshot without state dir, got %+v err=%v", snap, err)
	}
}

func TestReadRuntimeSnapshot_Corrupt(t *testing.T) {
	stateDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(stateDir, runtimeMetricsFileName), []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, err := ReadRuntimeSnapshot(stateDir); err == nil {
		t.Fatal("expected decode error for corrupt snapshot")
	}
}

func TestRuntimeMetrics_NilRecorder(t *testing.T) {
	var recorder *RuntimeMetrics
	if _, err := recorder.RecordDecision("ALLOWED"); err != nil {
		t.Fatalf("expected nil recorder to be a no-op, got %v", err)
	}
	if recorder.Snapshot().HasData() {
		t.Fatal("expected empty snapshot from nil recorder")
	}
}

func TestP95ProxyFromBuckets(t *testing.T) {
	buckets := make([]int64, len(latencyBucketUpperBoundsMs)+1)
	for i := 0; i < 19; i++ {
		buckets[latencyBucketIndex(5)]++
	}
	buckets[latencyBucketIndex(60000)]++

	if got := p95ProxyFromBuckets(buckets, 20); got != 10 {
		t.Fatalf("expected p95 proxy 10ms, got %d", got)
	}
	if got := p95ProxyFromBuckets(buckets, 0); got != 0 {
		t.Fatalf("expected 0 for no samples, got %d", got)
	}
}
