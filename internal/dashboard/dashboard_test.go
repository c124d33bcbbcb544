package dashboard

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

func sampleSnapshot() engine.Snapshot {
	ts := time.Date(2026, 2, 15, 9, 30, 0, 0, time.UTC)
	return engine.Snapshot{
		GeneratedAt: ts,
		SandboxRoot: "/srv/sandbox",
		Policy: engine.PolicyView{
			Source: "builtin",
			Rules: []engine.RuleView{
				{Tool: "read_file", Risk: policy.RiskSafe, Action: policy.ActionAllow},
				{Tool: "run_shell", Risk: policy.RiskDangerous, Action: policy.ActionBlock, Locked: true, HardVeto: true},
			},
		},
		Pending: []approval.PendingAction{{
			ID:        "a1b2c3d4",
			Tool:      "write_file",
			Risk:      policy.RiskSensitive,
			Effect:    "Write 20 bytes to sandbox/<script>.txt",
			Status:    approval.StatusPending,
			CreatedAt: ts,
		}},
		Recent: []audit.Record{{
			Seq:      1,
			Time:     ts,
			Tool:     "write_file",
			Risk:     "SENSITIVE",
			Decision: audit.DecisionRequireApproval,
			Detail:   "action_id=a1b2c3d4 " + strings.Repeat("x", 100),
		}},
		AuditTotal: 1,
	}
}

func TestText_RendersAllSections(t *testing.T) {
	out := Text(sampleSnapshot())

	for _, want := range []string{
		"MCP GATEKEEPER DASHBOARD",
		"--- POLICY (builtin) ---",
		"[SAFE]",
		"action=allow",
		"[locked]",
		"--- PENDING ACTIONS (1) ---",
		"[a1b2c3d4] [SENSITIVE] write_file  ->  Write 20 bytes to sandbox/<script>.txt",
		"--- RECENT AUDIT (1 of 1 total) ---",
		"REQUIRE_APPROVAL",
		"sandbox root: /srv/sandbox",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in dashboard:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("expected plain text without escape sequences")
	}
	if strings.Contains(out, strings.Repeat("x", 60)) {
		t.Fatal("expected audit detail to be clipped")
	}
}

func TestText_EmptyState(t *testing.T) {
	out := Text(engine.Snapshot{})
	if strings.Count(out, "(none)") != 2 {
		t.Fatalf("expected empty pending and audit sections:\n%s", out)
	}
	if !strings.Contains(out, "--- POLICY (-) ---") {
		t.Fatalf("expected placeholder policy source:\n%s", out)
	}
}

func TestWriteHTML_EscapesContent(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("WriteHTML error: %v", err)
	}
	page := buf.String()

	if strings.Contains(page, "sandbox/<script>.txt") {
		t.Fatal("expected effect to be HTML-escaped")
	}
	for _, want := range []string{
		"sandbox/&lt;script&gt;.txt",
		"badge-sensitive",
		"gatekeeper approval approve a1b2c3d4",
		`<span class="locked">locked</span>`,
		"Audit Log (1 of 1)",
	} {
		if !strings.Contains(page, want) {
			t.Fatalf("expected %q in page", want)
		}
	}
}

func TestWriteHTML_EmptyState(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, engine.Snapshot{}); err != nil {
		t.Fatalf("WriteHTML error: %v", err)
	}
	if !strings.Contains(buf.String(), "No pending actions.") || !strings.Contains(buf.String(), "No events yet.") {
		t.Fatal("expected empty-state messages")
	}
}
