package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

func TestInitCommand_CreatesConfigPolicyAndSandbox(t *testing.T) {
	home := setHome(t)

	out := captureOutput(t, func() {
		if err := runInit(nil, nil); err != nil {
			t.Fatalf("runInit error: %v", err)
		}
	})
	if !strings.Contains(out, "Gatekeeper initialized!") {
		t.Fatalf("unexpected output: %s", out)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	wantPolicy := filepath.Join(home, ".gatekeeper", "policy.yaml")
	if cfg.Policy.File != wantPolicy {
		t.Fatalf("expected policy file %q, got %q", wantPolicy, cfg.Policy.File)
	}
	if info, err := os.Stat(cfg.SandboxRoot()); err != nil || !info.IsDir() {
		t.Fatalf("expected sandbox dir at %s: %v", cfg.SandboxRoot(), err)
	}

	table, err := loadPolicyTable(cfg, slog.Default())
	if err != nil {
		t.Fatalf("generated policy should load: %v", err)
	}
	snap := table.Snapshot()
	if snap.Source() != wantPolicy {
		t.Fatalf("expected policy source %q, got %q", wantPolicy, snap.Source())
	}
	for tool, want := range policy.DefaultRules() {
		got := snap.Classify(tool)
		if got.Risk != want.Risk || got.Action != want.Action || got.Approvable != want.Approvable {
			t.Fatalf("%s: generated policy %+v differs from built-in %+v", tool, got, want)
		}
	}
}

func TestInitCommand_KeepsExistingConfig(t *testing.T) {
	setHome(t)
	captureOutput(t, func() { _ = runInit(nil, nil) })

	out := captureOutput(t, func() {
		if err := runInit(nil, nil); err != nil {
			t.Fatalf("runInit error: %v", err)
		}
	})
	if !strings.Contains(out, "Config already exists") {
		t.Fatalf("expected existing config message, got: %s", out)
	}
}
