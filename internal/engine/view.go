package engine

import (
	"iter"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

// RuleView is one row of the public policy view. Locked rules are built in
// and cannot be changed by configuration.
type RuleView struct {
	Tool       string           `json:"tool"`
	Risk       policy.RiskLevel `json:"risk_level"`
	Action     policy.Action    `json:"default_action"`
	Approvable bool             `json:"allow_approval"`
	Locked     bool             `json:"locked"`
	HardVeto   bool             `json:"hard_veto"`
}

// PolicyView is the read-only policy table as callers see it.
type PolicyView struct {
	Source   string     `json:"source"`
	Digest   string     `json:"digest,omitempty"`
	LoadedAt time.Time  `json:"loaded_at"`
	Rules    []RuleView `json:"rules"`
	Fallback RuleView   `json:"fallback"`
}

// Snapshot is the presentation view of policy, queue and recent audit state.
type Snapshot struct {
	GeneratedAt time.Time                `json:"generated_at"`
	SandboxRoot string                   `json:"sandbox_root"`
	Policy      PolicyView               `json:"policy"`
	Pending     []approval.PendingAction `json:"pending"`
	Recent      []audit.Record           `json:"recent"`
	AuditTotal  int                      `json:"audit_total"`
	Decisions   map[audit.Decision]int   `json:"decisions"`
}

// SandboxRoot returns the canonical sandbox root.
func (e *Engine) SandboxRoot() string {
	return e.resolver.Root()
}

// Policy returns the current policy table.
func (e *Engine) Policy() PolicyView {
	snap := e.policy.Snapshot()
	rules := snap.Rules()
	view := PolicyView{
		Source:   snap.Source(),
		Digest:   snap.Digest(),
		LoadedAt: snap.LoadedAt(),
		Rules:    make([]RuleView, 0, len(rules)),
		Fallback: ruleView("*", policy.FallbackRule),
	}
	for _, named := range rules {
		view.Rules = append(view.Rules, ruleView(named.Tool, named.Rule))
	}
	return view
}

func ruleView(tool string, rule policy.Rule) RuleView {
	return RuleView{
		Tool:       tool,
		Risk:       rule.Risk,
		Action:     rule.Action,
		Approvable: rule.Approvable,
		Locked:     rule.Locked,
		HardVeto:   rule.HardVeto(),
	}
}

// Pending yields live pending actions, oldest first.
func (e *Engine) Pending() iter.Seq[approval.PendingAction] {
	return e.queue.List()
}

// ListPending returns live pending actions, oldest first.
func (e *Engine) ListPending() []approval.PendingAction {
	return e.queue.Pending()
}

// AuditLimit is the default number of records returned by Audit.
func (e *Engine) AuditLimit() int {
	return e.auditLimit
}

// Audit returns up to limit matching records, newest first. limit <= 0
// uses the configured default.
func (e *Engine) Audit(limit int, filter audit.Filter) []audit.Record {
	if limit <= 0 {
		limit = e.auditLimit
	}
	return e.audit.Recent(limit, filter)
}

// VerifyAudit checks the audit hash chain.
func (e *Engine) VerifyAudit() error {
	return e.audit.Verify()
}

// AuditLen returns the total number of audit records.
func (e *Engine) AuditLen() int {
	return e.audit.Len()
}

// Snapshot gathers the presentation view with the given number of recent
// audit records.
func (e *Engine) Snapshot(recent int) Snapshot {
	decisions := make(map[audit.Decision]int)
	total := 0
	for rec := range e.audit.Query(0, audit.Filter{}) {
		decisions[rec.Decision]++
		total++
	}
	return Snapshot{
		GeneratedAt: e.now().UTC(),
		SandboxRoot: e.resolver.Root(),
		Policy:      e.Policy(),
		Pending:     e.queue.Pending(),
		Recent:      e.audit.Recent(recent, audit.Filter{}),
		AuditTotal:  total,
		Decisions:   decisions,
	}
}
