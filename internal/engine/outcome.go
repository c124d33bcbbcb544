package engine

import (
	"errors"
	"fmt"

	"github.com/MEKXH/gatekeeper/internal/policy"
)

// ErrNoExecutor is wrapped by ExecutorError when a tool the policy lets
// through has no executor behind it.
var ErrNoExecutor = errors.New("no executor for tool")

// ExecutorError wraps an I/O failure during an allowed or approved execution.
type ExecutorError struct {
	Tool string
	Err  error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Tool, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// Kind is the disposition of one invocation or resolution.
type Kind string

const (
	KindExecuted Kind = "EXECUTED"
	KindQueued   Kind = "QUEUED"
	KindBlocked  Kind = "BLOCKED"
	KindDenied   Kind = "DENIED"
	KindFailed   Kind = "ERROR"
)

// Outcome is what callers get back from Invoke and Resolve.
type Outcome struct {
	Kind     Kind             `json:"status"`
	Tool     string           `json:"tool"`
	Risk     policy.RiskLevel `json:"risk_level,omitempty"`
	ActionID string           `json:"action_id,omitempty"`
	Result   string           `json:"result,omitempty"`
	Detail   string           `json:"detail,omitempty"`
	Effect   string           `json:"proposed_effect,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Verdict is a human decision on a pending action.
type Verdict string

const (
	Approve Verdict = "APPROVE"
	Deny    Verdict = "DENY"
)

func approvalInstructions(id string) string {
	return fmt.Sprintf("Use approve('%s') to execute or deny('%s') to reject.", id, id)
}
