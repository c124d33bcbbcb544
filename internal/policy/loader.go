package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loaded is a parsed and validated policy file.
type Loaded struct {
	Rules  map[string]Rule
	Source string
	Digest string
}

type fileRule struct {
	RiskLevel     string `yaml:"risk_level"`
	DefaultAction string `yaml:"default_action"`
	AllowApproval bool   `yaml:"allow_approval"`
}

// LoadFile reads a YAML or JSON policy file.
func LoadFile(path string) (Loaded, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("read policy file: %w", err)
	}
	loaded, err := Parse(data)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	loaded.Source = path
	return loaded, nil
}

// Parse decodes a mapping of tool name to
// {risk_level, default_action, allow_approval}. Unknown risk levels,
// actions and keys are rejected here rather than at decision time.
func Parse(data []byte) (Loaded, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Loaded{}, fmt.Errorf("policy is empty")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var raw map[string]fileRule
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Loaded{}, fmt.Errorf("policy is empty")
		}
		return Loaded{}, err
	}
	if len(raw) == 0 {
		return Loaded{}, fmt.Errorf("policy defines no tools")
	}

	rules := make(map[string]Rule, len(raw))
	for name, entry := range raw {
		toolName := normalizeToolName(name)
		if toolName == "" {
			return Loaded{}, fmt.Errorf("policy rule with empty tool name")
		}
		if _, dup := rules[toolName]; dup {
			return Loaded{}, fmt.Errorf("duplicate policy rule for %s", toolName)
		}
		risk, err := ParseRiskLevel(entry.RiskLevel)
		if err != nil {
			return Loaded{}, fmt.Errorf("tool %s: %w", toolName, err)
		}
		action, err := ParseAction(entry.DefaultAction)
		if err != nil {
			return Loaded{}, fmt.Errorf("tool %s: %w", toolName, err)
		}
		rules[toolName] = Rule{Risk: risk, Action: action, Approvable: entry.AllowApproval}
	}

	return Loaded{
		Rules:  rules,
		Source: "inline",
		Digest: digest(data),
	}, nil
}

// Overridden lists configured tools whose rule differs from the locked rule
// that replaces it, so operators can be told about it at load time.
func (l Loaded) Overridden() []string {
	var out []string
	for name, rule := range l.Rules {
		locked, ok := lockedRules[name]
		if !ok {
			continue
		}
		if rule.Risk != locked.Risk || rule.Action != locked.Action || rule.Approvable != locked.Approvable {
			out = append(out, name)
		}
	}
	return out
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + strings.ToLower(hex.EncodeToString(sum[:]))
}
