// Package audit keeps the append-only, hash-chained record of every decision.
package audit

import (
	"strings"
	"time"
)

// Decision is the outcome recorded at one decision point.
type Decision string

const (
	DecisionAllowed         Decision = "ALLOWED"
	DecisionRequireApproval Decision = "REQUIRE_APPROVAL"
	DecisionBlocked         Decision = "BLOCKED"
	DecisionApproved        Decision = "APPROVED"
	DecisionDenied          Decision = "DENIED"
	DecisionExecuted        Decision = "EXECUTED"
	DecisionError           Decision = "ERROR"
)

// Decisions lists every decision in a stable order.
var Decisions = []Decision{
	DecisionAllowed,
	DecisionRequireApproval,
	DecisionBlocked,
	DecisionApproved,
	DecisionDenied,
	DecisionExecuted,
	DecisionError,
}

// ParseDecision returns the decision named by raw, ignoring case.
func ParseDecision(raw string) (Decision, bool) {
	want := strings.ToUpper(strings.TrimSpace(raw))
	for _, d := range Decisions {
		if string(d) == want {
			return d, true
		}
	}
	return "", false
}

// Entry is what callers hand to Append.
type Entry struct {
	Tool     string
	Args     string
	Risk     string
	Decision Decision
	Detail   string
	ActionID string
}

// Record is one immutable audit entry. Seq, Time, PrevHash and Hash are
// assigned by the log.
type Record struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"ts"`
	Tool     string    `json:"tool"`
	Args     string    `json:"args"`
	Risk     string    `json:"risk"`
	Decision Decision  `json:"decision"`
	Detail   string    `json:"detail,omitempty"`
	ActionID string    `json:"action_id,omitempty"`
	PrevHash string    `json:"prev_hash"`
	Hash     string    `json:"hash"`
}

// Filter selects records in Query. Zero fields match everything.
type Filter struct {
	Tool     string
	Decision Decision
	ActionID string
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	if tool := strings.TrimSpace(f.Tool); tool != "" && !strings.EqualFold(r.Tool, tool) {
		return false
	}
	if f.Decision != "" && r.Decision != f.Decision {
		return false
	}
	if id := strings.TrimSpace(f.ActionID); id != "" && r.ActionID != id {
		return false
	}
	return true
}
