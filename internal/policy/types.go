package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Load-time validation errors, wrapped with the offending value.
var (
	// ErrUnknownRiskLevel is returned for a risk_level outside SAFE, SENSITIVE and DANGEROUS.
	ErrUnknownRiskLevel = errors.New("unknown risk level")
	// ErrUnknownAction is returned for a default_action outside allow, require_approval and block.
	ErrUnknownAction = errors.New("unknown default action")
)

// RiskLevel is the coarse impact classification of a tool.
type RiskLevel string

const (
	RiskSafe      RiskLevel = "SAFE"
	RiskSensitive RiskLevel = "SENSITIVE"
	RiskDangerous RiskLevel = "DANGEROUS"
)

// ParseRiskLevel accepts any casing and rejects values outside the closed set.
func ParseRiskLevel(raw string) (RiskLevel, error) {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case RiskSafe:
		return RiskSafe, nil
	case RiskSensitive:
		return RiskSensitive, nil
	case RiskDangerous:
		return RiskDangerous, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRiskLevel, raw)
	}
}

// Action is the baseline disposition for a tool absent human intervention.
type Action string

const (
	ActionAllow           Action = "allow"
	ActionRequireApproval Action = "require_approval"
	ActionBlock           Action = "block"
)

// ParseAction accepts any casing and rejects values outside the closed set.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionAllow:
		return ActionAllow, nil
	case ActionRequireApproval:
		return ActionRequireApproval, nil
	case ActionBlock:
		return ActionBlock, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// Rule is the policy for one tool.
//
// Approvable only matters when Action is ActionBlock: it decides whether a
// human may still override the block. Locked marks built-in rules that
// configuration cannot change.
type Rule struct {
	Risk       RiskLevel `json:"risk_level" yaml:"risk_level"`
	Action     Action    `json:"default_action" yaml:"default_action"`
	Approvable bool      `json:"allow_approval" yaml:"allow_approval"`
	Locked     bool      `json:"locked,omitempty" yaml:"-"`
}

// HardVeto reports whether the rule can never lead to execution.
func (r Rule) HardVeto() bool {
	return r.Action == ActionBlock && !r.Approvable
}

// NamedRule pairs a rule with its tool name for ordered views.
type NamedRule struct {
	Tool string `json:"tool"`
	Rule
}

// Tool names with built-in meaning.
const (
	ToolReadFile   = "read_file"
	ToolWriteFile  = "write_file"
	ToolDeleteFile = "delete_file"
	ToolRunShell   = "run_shell"
)

// FallbackRule applies to tools missing from the table: unknown tools fail closed.
var FallbackRule = Rule{Risk: RiskDangerous, Action: ActionBlock, Approvable: false}

// lockedRules are merged over every table. Shell execution has no executor
// and can never be approved, whatever the configuration says.
var lockedRules = map[string]Rule{
	ToolRunShell: {Risk: RiskDangerous, Action: ActionBlock, Approvable: false, Locked: true},
}

// DefaultRules returns the built-in policy used when no policy file is configured.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ToolReadFile:   {Risk: RiskSafe, Action: ActionAllow},
		ToolWriteFile:  {Risk: RiskSensitive, Action: ActionRequireApproval, Approvable: true},
		ToolDeleteFile: {Risk: RiskDangerous, Action: ActionBlock, Approvable: true},
		ToolRunShell:   {Risk: RiskDangerous, Action: ActionBlock, Approvable: false},
	}
}

func normalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
