package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/executor"
	"github.com/MEKXH/gatekeeper/internal/sandbox"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	resolver, err := sandbox.NewResolver(filepath.Join(t.TempDir(), "sandbox"))
	if err != nil {
		t.Fatalf("NewResolver error: %v", err)
	}
	eng, err := engine.New(engine.Options{Resolver: resolver, Executor: executor.NewFS()})
	if err != nil {
		t.Fatalf("engine.New error: %v", err)
	}
	reg, err := NewGatekeeperRegistry(eng)
	if err != nil {
		t.Fatalf("NewGatekeeperRegistry error: %v", err)
	}
	return reg, resolver.Root()
}

func execute(t *testing.T, reg *Registry, name string, args any) (string, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return reg.Execute(context.Background(), name, string(raw))
}

func TestGatekeeperRegistry_ExposesSurface(t *testing.T) {
	reg, _ := newTestRegistry(t)

	want := []string{"approve", "audit_log", "delete_file", "deny", "get_dashboard", "get_policy", "list_pending", "read_file", "run_shell", "write_file"}
	got := reg.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected tools %v, got %v", want, got)
	}

	infos, err := reg.Infos(context.Background())
	if err != nil {
		t.Fatalf("Infos error: %v", err)
	}
	for _, info := range infos {
		if info.Desc == "" {
			t.Fatalf("expected description for %s", info.Name)
		}
	}
}

func TestGatekeeperTools_WriteApproveRead(t *testing.T) {
	reg, root := newTestRegistry(t)

	out, err := execute(t, reg, "write_file", map[string]any{"path": "hello.txt", "content": "hi"})
	if err != nil {
		t.Fatalf("write_file error: %v", err)
	}
	var queued engine.Outcome
	if err := json.Unmarshal([]byte(out), &queued); err != nil {
		t.Fatalf("decode queued outcome: %v (%s)", err, out)
	}
	if queued.Kind != engine.KindQueued || queued.ActionID == "" {
		t.Fatalf("expected queued outcome, got %+v", queued)
	}

	pending, err := execute(t, reg, "list_pending", map[string]any{})
	if err != nil || !strings.Contains(pending, queued.ActionID) {
		t.Fatalf("expected pending list to contain %s, got %q err=%v", queued.ActionID, pending, err)
	}

	if _, err := execute(t, reg, "approve", map[string]any{"action_id": queued.ActionID}); err != nil {
		t.Fatalf("approve error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	if err != nil || string(data) != "hi" {
		t.Fatalf("expected written file, got %q err=%v", string(data), err)
	}

	content, err := execute(t, reg, "read_file", map[string]any{"path": "hello.txt"})
	if err != nil {
		t.Fatalf("read_file error: %v", err)
	}
	if content != "hi" {
		t.Fatalf("expected raw content, got %q", content)
	}

	if _, err := execute(t, reg, "approve", map[string]any{"action_id": queued.ActionID}); err == nil || !strings.Contains(err.Error(), "already resolved") {
		t.Fatalf("expected already resolved error, got %v", err)
	}
	if _, err := execute(t, reg, "deny", map[string]any{"action_id": "nope"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if empty, _ := execute(t, reg, "list_pending", map[string]any{}); empty != "No pending actions." {
		t.Fatalf("expected empty pending list, got %q", empty)
	}
}

func TestGatekeeperTools_BlockedResults(t *testing.T) {
	reg, _ := newTestRegistry(t)

	out, err := execute(t, reg, "run_shell", map[string]any{"command": "ls -la"})
	if err != nil {
		t.Fatalf("run_shell error: %v", err)
	}
	if !strings.Contains(out, `"status": "BLOCKED"`) || !strings.Contains(out, "PERMANENTLY blocked") {
		t.Fatalf("unexpected run_shell result: %s", out)
	}

	out, err = execute(t, reg, "read_file", map[string]any{"path": "../../etc/passwd"})
	if err != nil {
		t.Fatalf("read_file error: %v", err)
	}
	if !strings.Contains(out, "Path traversal blocked") {
		t.Fatalf("expected traversal block, got %s", out)
	}
}

func TestGatekeeperTools_ReadMissingFileIsToolError(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if _, err := execute(t, reg, "read_file", map[string]any{"path": "missing.txt"}); err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("expected file not found error, got %v", err)
	}
}

func TestGatekeeperTools_AuditLogAndPolicy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	if out, _ := execute(t, reg, "audit_log", map[string]any{}); out != "Audit log is empty." {
		t.Fatalf("expected empty audit log, got %q", out)
	}

	_, _ = execute(t, reg, "run_shell", map[string]any{"command": "id"})
	_, _ = execute(t, reg, "write_file", map[string]any{"path": "a.txt", "content": "x"})

	out, err := execute(t, reg, "audit_log", map[string]any{"limit": 1})
	if err != nil {
		t.Fatalf("audit_log error: %v", err)
	}
	var records []audit.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode audit records: %v", err)
	}
	if len(records) != 1 || records[0].Decision != audit.DecisionRequireApproval {
		t.Fatalf("expected newest record only, got %+v", records)
	}

	out, err = execute(t, reg, "audit_log", map[string]any{"decision": "blocked"})
	if err != nil || !strings.Contains(out, "run_shell") || strings.Contains(out, "write_file") {
		t.Fatalf("expected blocked records only, got %s err=%v", out, err)
	}
	if _, err := execute(t, reg, "audit_log", map[string]any{"decision": "MAYBE"}); err == nil {
		t.Fatal("expected error for unknown decision filter")
	}

	policyOut, err := execute(t, reg, "get_policy", map[string]any{})
	if err != nil {
		t.Fatalf("get_policy error: %v", err)
	}
	var view engine.PolicyView
	if err := json.Unmarshal([]byte(policyOut), &view); err != nil {
		t.Fatalf("decode policy view: %v", err)
	}
	if len(view.Rules) != 4 {
		t.Fatalf("expected 4 default rules, got %d", len(view.Rules))
	}
}

func TestGatekeeperTools_Dashboard(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, _ = execute(t, reg, "delete_file", map[string]any{"path": "old.txt"})

	out, err := execute(t, reg, "get_dashboard", map[string]any{})
	if err != nil {
		t.Fatalf("get_dashboard error: %v", err)
	}
	if !strings.Contains(out, "PENDING ACTIONS (1)") || !strings.Contains(out, "PERMANENTLY delete sandbox/old.txt") {
		t.Fatalf("unexpected dashboard:\n%s", out)
	}
}
