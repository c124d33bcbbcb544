// Package engine decides what happens to each tool invocation: execute,
// queue for approval or block, with every decision point recorded in the
// audit log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/MEKXH/gatekeeper/internal/policy"
	"github.com/MEKXH/gatekeeper/internal/sandbox"
)

const defaultAuditLimit = 25

// Executor performs file operations on paths already confined to the sandbox.
// There is no shell executor.
type Executor interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, content string) error
	Delete(ctx context.Context, path string) error
}

// Notifier is told about every new pending action.
type Notifier interface {
	NotifyPending(ctx context.Context, action approval.PendingAction) error
}

// Options wires an Engine. Resolver is required; Policy, Queue and Audit
// default to fresh in-memory instances.
type Options struct {
	Policy     *policy.Table
	Resolver   *sandbox.Resolver
	Executor   Executor
	Queue      *approval.Queue
	Audit      *audit.Log
	Notifier   Notifier
	Metrics    *metrics.RuntimeMetrics
	Logger     *slog.Logger
	AuditLimit int
}

// Engine is the decision engine. It is safe for concurrent use; each
// decision classifies against a single policy snapshot.
type Engine struct {
	policy     *policy.Table
	resolver   *sandbox.Resolver
	executor   Executor
	queue      *approval.Queue
	audit      *audit.Log
	notifier   Notifier
	metrics    *metrics.RuntimeMetrics
	logger     *slog.Logger
	auditLimit int
	now        func() time.Time
}

// New builds an engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("sandbox resolver is required")
	}
	e := &Engine{
		policy:     opts.Policy,
		resolver:   opts.Resolver,
		executor:   opts.Executor,
		queue:      opts.Queue,
		audit:      opts.Audit,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		auditLimit: opts.AuditLimit,
		now:        time.Now,
	}
	if e.policy == nil {
		e.policy = policy.NewDefaultTable()
	}
	if e.queue == nil {
		e.queue = approval.NewQueue()
	}
	if e.audit == nil {
		e.audit = audit.NewLog()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.auditLimit <= 0 {
		e.auditLimit = defaultAuditLimit
	}
	return e, nil
}

// Invoke runs one tool invocation through the sandbox check, the policy and
// the executor. Blocks are outcomes, not errors; the error is non-nil only
// for executor failures (*ExecutorError).
func (e *Engine) Invoke(ctx context.Context, tool string, args map[string]any) (Outcome, error) {
	name := strings.ToLower(strings.TrimSpace(tool))
	summary := summarizeArgs(name, args)

	var target sandbox.Path
	if isPathTool(name) {
		resolved, err := e.resolver.Resolve(argString(args, argPath))
		if err != nil {
			return e.blockTraversal(name, summary, err), nil
		}
		target = resolved
	}

	snap := e.policy.Snapshot()
	rule, known := snap.Lookup(name)
	if !known {
		rule = policy.FallbackRule
	}

	switch {
	case rule.Action == policy.ActionAllow:
		detail := ""
		if isPathTool(name) {
			detail = "sandbox root: " + e.resolver.Root()
		}
		e.record(audit.Entry{Tool: name, Args: summary, Risk: string(rule.Risk), Decision: audit.DecisionAllowed, Detail: detail})
		return e.execute(ctx, name, args, target, rule.Risk, summary, "")

	case rule.Action == policy.ActionRequireApproval:
		return e.enqueue(ctx, name, args, rule.Risk, summary, audit.DecisionRequireApproval, ""), nil

	case rule.Approvable:
		return e.enqueue(ctx, name, args, rule.Risk, summary, audit.DecisionBlocked, "blocked by policy, pending override: "), nil

	default:
		outcome := Outcome{Kind: KindBlocked, Tool: name, Risk: rule.Risk}
		switch {
		case name == policy.ToolRunShell:
			outcome.Detail = "Shell execution permanently forbidden"
			outcome.Message = "run_shell is PERMANENTLY blocked. This can never be approved."
		case !known:
			outcome.Detail = fmt.Sprintf("unknown tool %q", name)
		default:
			outcome.Detail = "blocked by policy: not approvable"
		}
		e.record(audit.Entry{Tool: name, Args: summary, Risk: string(rule.Risk), Decision: audit.DecisionBlocked, Detail: outcome.Detail})
		return outcome, nil
	}
}

// Approve executes a pending action.
func (e *Engine) Approve(ctx context.Context, id string) (Outcome, error) {
	return e.Resolve(ctx, id, Approve)
}

// Deny discards a pending action.
func (e *Engine) Deny(ctx context.Context, id string) (Outcome, error) {
	return e.Resolve(ctx, id, Deny)
}

// Resolve applies a human verdict to a pending action. Queue misuse is
// returned as approval.ErrNotFound or approval.ErrAlreadyResolved.
func (e *Engine) Resolve(ctx context.Context, id string, verdict Verdict) (Outcome, error) {
	switch verdict {
	case Approve:
		action, err := e.queue.Approve(id)
		if err != nil {
			return Outcome{}, err
		}
		summary := summarizeArgs(action.Tool, action.Args)
		e.record(audit.Entry{Tool: action.Tool, Args: summary, Risk: string(action.Risk), Decision: audit.DecisionApproved, Detail: "action_id=" + action.ID, ActionID: action.ID})

		// A reload may have turned the tool into a hard veto since it was queued.
		if rule := e.policy.Classify(action.Tool); rule.HardVeto() {
			detail := fmt.Sprintf("%s is not approvable under the current policy", action.Tool)
			e.record(audit.Entry{Tool: action.Tool, Args: summary, Risk: string(rule.Risk), Decision: audit.DecisionBlocked, Detail: detail, ActionID: action.ID})
			return Outcome{Kind: KindBlocked, Tool: action.Tool, Risk: rule.Risk, ActionID: action.ID, Detail: detail}, nil
		}

		var target sandbox.Path
		if isPathTool(action.Tool) {
			resolved, err := e.resolver.Resolve(argString(action.Args, argPath))
			if err != nil {
				e.record(audit.Entry{Tool: action.Tool, Args: summary, Risk: string(action.Risk), Decision: audit.DecisionError, Detail: err.Error(), ActionID: action.ID})
				return Outcome{Kind: KindBlocked, Tool: action.Tool, Risk: action.Risk, ActionID: action.ID, Detail: err.Error()}, nil
			}
			target = resolved
		}
		return e.execute(ctx, action.Tool, action.Args, target, action.Risk, summary, action.ID)

	case Deny:
		action, err := e.queue.Deny(id)
		if err != nil {
			return Outcome{}, err
		}
		e.record(audit.Entry{
			Tool:     action.Tool,
			Args:     summarizeArgs(action.Tool, action.Args),
			Risk:     string(action.Risk),
			Decision: audit.DecisionDenied,
			Detail:   "action_id=" + action.ID + " denied",
			ActionID: action.ID,
		})
		return Outcome{
			Kind:     KindDenied,
			Tool:     action.Tool,
			Risk:     action.Risk,
			ActionID: action.ID,
			Effect:   action.Effect,
			Message:  "Action denied. It will not be executed.",
		}, nil

	default:
		return Outcome{}, fmt.Errorf("unknown verdict %q", verdict)
	}
}

func (e *Engine) blockTraversal(tool, summary string, err error) Outcome {
	detail := err.Error()
	var traversal *sandbox.TraversalError
	if !errors.As(err, &traversal) {
		detail = (&sandbox.TraversalError{Reason: detail}).Error()
	}
	e.record(audit.Entry{Tool: tool, Args: summary, Risk: string(policy.RiskDangerous), Decision: audit.DecisionBlocked, Detail: detail})
	return Outcome{Kind: KindBlocked, Tool: tool, Risk: policy.RiskDangerous, Detail: detail}
}

func (e *Engine) enqueue(ctx context.Context, tool string, args map[string]any, risk policy.RiskLevel, summary string, decision audit.Decision, detailPrefix string) Outcome {
	action := e.queue.Enqueue(tool, args, risk, describeEffect(tool, args))
	e.record(audit.Entry{
		Tool:     tool,
		Args:     summary,
		Risk:     string(risk),
		Decision: decision,
		Detail:   detailPrefix + "action_id=" + action.ID,
		ActionID: action.ID,
	})
	e.notify(ctx, action)

	return Outcome{
		Kind:     KindQueued,
		Tool:     tool,
		Risk:     risk,
		ActionID: action.ID,
		Effect:   action.Effect,
		Message:  approvalInstructions(action.ID),
	}
}

func (e *Engine) execute(ctx context.Context, tool string, args map[string]any, target sandbox.Path, risk policy.RiskLevel, summary, actionID string) (Outcome, error) {
	start := e.now()
	result, detail, runErr := e.run(ctx, tool, args, target)
	if !errors.Is(runErr, ErrNoExecutor) {
		if _, err := e.metrics.RecordExecution(e.now().Sub(start), runErr); err != nil {
			e.logger.Debug("persist runtime metrics failed", "error", err)
		}
	}

	if runErr != nil {
		execErr := &ExecutorError{Tool: tool, Err: runErr}
		e.record(audit.Entry{Tool: tool, Args: summary, Risk: string(risk), Decision: audit.DecisionError, Detail: runErr.Error(), ActionID: actionID})
		return Outcome{Kind: KindFailed, Tool: tool, Risk: risk, ActionID: actionID, Detail: runErr.Error()}, execErr
	}

	e.record(audit.Entry{Tool: tool, Args: summary, Risk: string(risk), Decision: audit.DecisionExecuted, Detail: detail, ActionID: actionID})
	return Outcome{Kind: KindExecuted, Tool: tool, Risk: risk, ActionID: actionID, Result: result, Detail: detail}, nil
}

// run is the only place the executor is called.
func (e *Engine) run(ctx context.Context, tool string, args map[string]any, target sandbox.Path) (result, detail string, err error) {
	if e.executor == nil || !isPathTool(tool) {
		return "", "", fmt.Errorf("%w %s", ErrNoExecutor, tool)
	}
	if !target.WithinRoot {
		return "", "", &sandbox.TraversalError{Path: target.Raw, Reason: "path was not verified"}
	}

	shown := displayPath(target.Raw)
	switch tool {
	case policy.ToolReadFile:
		content, err := e.executor.Read(ctx, target.Resolved)
		if err != nil {
			return "", "", err
		}
		return content, fmt.Sprintf("%dB", len(content)), nil
	case policy.ToolWriteFile:
		content := argString(args, argContent)
		if err := e.executor.Write(ctx, target.Resolved, content); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(content), shown), fmt.Sprintf("%dB written", len(content)), nil
	default:
		if err := e.executor.Delete(ctx, target.Resolved); err != nil {
			return "", "", err
		}
		return "deleted " + shown, "deleted", nil
	}
}

func (e *Engine) record(entry audit.Entry) audit.Record {
	rec := e.audit.Append(entry)
	if _, err := e.metrics.RecordDecision(string(rec.Decision)); err != nil {
		e.logger.Debug("persist runtime metrics failed", "error", err)
	}
	e.logger.Info("gatekeeper decision",
		"seq", rec.Seq,
		"tool", rec.Tool,
		"decision", rec.Decision,
		"risk", rec.Risk,
		"action_id", rec.ActionID,
	)
	return rec
}

func (e *Engine) notify(ctx context.Context, action approval.PendingAction) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.NotifyPending(ctx, action)
	if _, mErr := e.metrics.RecordNotification(err == nil); mErr != nil {
		e.logger.Debug("persist runtime metrics failed", "error", mErr)
	}
	if err != nil {
		e.logger.Warn("pending action notification failed", "action_id", action.ID, "tool", action.Tool, "error", err)
	}
}
