// Package tools exposes the gatekeeper operations as eino tools so every
// transport serves the same surface.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/dashboard"
	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

// Gatekeeper is the part of the engine the tools call.
type Gatekeeper interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (engine.Outcome, error)
	Resolve(ctx context.Context, id string, verdict engine.Verdict) (engine.Outcome, error)
	ListPending() []approval.PendingAction
	Audit(limit int, filter audit.Filter) []audit.Record
	Policy() engine.PolicyView
	Snapshot(recent int) engine.Snapshot
}

// ReadFileInput parameters for read_file
type ReadFileInput struct {
	Path string `json:"path" jsonschema:"required,description=Relative path inside the sandbox"`
}

// WriteFileInput parameters for write_file
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=Relative path inside the sandbox"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

// DeleteFileInput parameters for delete_file
type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"required,description=Relative path inside the sandbox"`
}

// RunShellInput parameters for run_shell
type RunShellInput struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute"`
}

// ActionInput identifies a pending action.
type ActionInput struct {
	ActionID string `json:"action_id" jsonschema:"required,description=ID of the pending action"`
}

// AuditLogInput parameters for audit_log
type AuditLogInput struct {
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Max entries to return (default 25)"`
	Tool     string `json:"tool,omitempty" jsonschema:"description=Only entries for this tool"`
	Decision string `json:"decision,omitempty" jsonschema:"description=Only entries with this decision"`
}

// EmptyInput is used by tools without parameters.
type EmptyInput struct{}

type gatekeeperTools struct {
	gate Gatekeeper
}

// NewGatekeeperRegistry registers the full invocation surface.
func NewGatekeeperRegistry(gate Gatekeeper) (*Registry, error) {
	g := &gatekeeperTools{gate: gate}
	builders := []func() (tool.InvokableTool, error){
		func() (tool.InvokableTool, error) {
			return utils.InferTool(policy.ToolReadFile, "Read a file from the sandbox. [SAFE - executes immediately]", g.readFile)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool(policy.ToolWriteFile, "Write a file in the sandbox. [SENSITIVE - requires approval]", g.writeFile)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool(policy.ToolDeleteFile, "Delete a file from the sandbox. [DANGEROUS - blocked, approvable]", g.deleteFile)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool(policy.ToolRunShell, "Execute a shell command. [DANGEROUS - ALWAYS blocked, NEVER approvable]", g.runShell)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool("list_pending", "List all pending actions awaiting approval.", g.listPending)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool("approve", "Approve and execute a pending action.", g.approve)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool("deny", "Deny and discard a pending action.", g.deny)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool("audit_log", "View the audit log of all actions and decisions (most recent first).", g.auditLog)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool("get_policy", "View the current policy configuration for all tools.", g.getPolicy)
		},
		func() (tool.InvokableTool, error) {
			return utils.InferTool("get_dashboard", "Get a dashboard: policy, pending actions and recent audit events.", g.getDashboard)
		},
	}

	reg := NewRegistry()
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, fmt.Errorf("build tool: %w", err)
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (g *gatekeeperTools) readFile(ctx context.Context, input *ReadFileInput) (string, error) {
	return g.invoke(ctx, policy.ToolReadFile, map[string]any{"path": input.Path})
}

func (g *gatekeeperTools) writeFile(ctx context.Context, input *WriteFileInput) (string, error) {
	return g.invoke(ctx, policy.ToolWriteFile, map[string]any{"path": input.Path, "content": input.Content})
}

func (g *gatekeeperTools) deleteFile(ctx context.Context, input *DeleteFileInput) (string, error) {
	return g.invoke(ctx, policy.ToolDeleteFile, map[string]any{"path": input.Path})
}

func (g *gatekeeperTools) runShell(ctx context.Context, input *RunShellInput) (string, error) {
	return g.invoke(ctx, policy.ToolRunShell, map[string]any{"command": input.Command})
}

func (g *gatekeeperTools) invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	outcome, err := g.gate.Invoke(ctx, name, args)
	if err != nil {
		return "", fmt.Errorf("execution error: %w", err)
	}
	return RenderOutcome(outcome)
}

func (g *gatekeeperTools) listPending(ctx context.Context, _ *EmptyInput) (string, error) {
	pending := g.gate.ListPending()
	if len(pending) == 0 {
		return "No pending actions.", nil
	}
	return marshalIndent(pending)
}

func (g *gatekeeperTools) approve(ctx context.Context, input *ActionInput) (string, error) {
	return g.resolve(ctx, input.ActionID, engine.Approve)
}

func (g *gatekeeperTools) deny(ctx context.Context, input *ActionInput) (string, error) {
	return g.resolve(ctx, input.ActionID, engine.Deny)
}

func (g *gatekeeperTools) resolve(ctx context.Context, id string, verdict engine.Verdict) (string, error) {
	outcome, err := g.gate.Resolve(ctx, id, verdict)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return "", fmt.Errorf("action '%s' not found", id)
	case errors.Is(err, approval.ErrAlreadyResolved):
		return "", fmt.Errorf("action '%s' is already resolved", id)
	case err != nil:
		return "", fmt.Errorf("execution error: %w", err)
	}
	return RenderOutcome(outcome)
}

func (g *gatekeeperTools) auditLog(ctx context.Context, input *AuditLogInput) (string, error) {
	filter := audit.Filter{Tool: input.Tool}
	if input.Decision != "" {
		decision, ok := audit.ParseDecision(input.Decision)
		if !ok {
			return "", fmt.Errorf("unknown decision %q", input.Decision)
		}
		filter.Decision = decision
	}
	records := g.gate.Audit(input.Limit, filter)
	if len(records) == 0 {
		return "Audit log is empty.", nil
	}
	return marshalIndent(records)
}

func (g *gatekeeperTools) getPolicy(ctx context.Context, _ *EmptyInput) (string, error) {
	return marshalIndent(g.gate.Policy())
}

func (g *gatekeeperTools) getDashboard(ctx context.Context, _ *EmptyInput) (string, error) {
	return dashboard.Text(g.gate.Snapshot(dashboard.RecentLimit)), nil
}

// RenderOutcome formats an outcome for a tool result. An executed read
// returns the file content as is; everything else is indented JSON.
func RenderOutcome(o engine.Outcome) (string, error) {
	if o.Kind == engine.KindExecuted && o.Tool == policy.ToolReadFile {
		return o.Result, nil
	}
	return marshalIndent(o)
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
