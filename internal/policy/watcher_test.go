package policy

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
}

func TestWatcher_ReloadKeepsTableOnMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	writePolicy(t, path, `{"read_file": {"risk_level": "SAFE", "default_action": "not-an-action"}}`)

	table := NewDefaultTable()
	w := NewWatcher(table, path, nil)
	w.reload()

	if table.Classify("write_file").Action != ActionRequireApproval {
		t.Fatal("expected malformed file to leave the table unchanged")
	}
}

func TestWatcher_ReloadInstallsNewTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	writePolicy(t, path, `{"write_file": {"risk_level": "SAFE", "default_action": "allow"}}`)

	table := NewDefaultTable()
	var got Loaded
	w := NewWatcher(table, path, func(l Loaded) { got = l })
	w.reload()

	if table.Classify("write_file").Action != ActionAllow {
		t.Fatal("expected reloaded rule to be active")
	}
	if got.Source != path {
		t.Fatalf("expected reload callback with source %q, got %q", path, got.Source)
	}
}

func TestWatcher_StartPicksUpFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	writePolicy(t, path, `{"write_file": {"risk_level": "SENSITIVE", "default_action": "require_approval"}}`)

	table := NewDefaultTable()
	reloaded := make(chan struct{}, 1)
	w := NewWatcher(table, path, func(Loaded) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		// rewrite less often than the debounce delay so a missed first
		// event (watcher not yet registered) is recovered on the next tick
		writePolicy(t, path, `{"write_file": {"risk_level": "SAFE", "default_action": "allow"}}`)
		select {
		case <-reloaded:
			if table.Classify("write_file").Action != ActionAllow {
				t.Fatal("expected watcher to install the new table")
			}
			cancel()
			<-done
			return
		case err := <-done:
			t.Fatalf("watcher exited early: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for policy reload")
		case <-tick.C:
		}
	}
}

func TestWatcher_SetLoggerIgnoresNil(t *testing.T) {
	table := NewDefaultTable()
	w := NewWatcher(table, filepath.Join(t.TempDir(), "policy.yaml"), nil)

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	w.SetLogger(custom)
	w.SetLogger(nil)
	if w.logger != custom {
		t.Fatal("expected nil logger to leave the configured logger in place")
	}
}
