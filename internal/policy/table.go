package policy

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the policy table. A decision classifies
// against one snapshot from start to finish.
type Snapshot struct {
	rules    map[string]Rule
	digest   string
	source   string
	loadedAt time.Time
}

// Classify returns the rule for toolName, or FallbackRule when the tool is
// not configured.
func (s *Snapshot) Classify(toolName string) Rule {
	if rule, ok := s.Lookup(toolName); ok {
		return rule
	}
	return FallbackRule
}

// Lookup returns the configured rule for toolName and whether one exists.
func (s *Snapshot) Lookup(toolName string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	rule, ok := s.rules[normalizeToolName(toolName)]
	return rule, ok
}

// Rules returns the table sorted by tool name.
func (s *Snapshot) Rules() []NamedRule {
	if s == nil {
		return nil
	}
	out := make([]NamedRule, 0, len(s.rules))
	for name, rule := range s.rules {
		out = append(out, NamedRule{Tool: name, Rule: rule})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

// Digest identifies the source bytes of the table ("" for in-code tables).
func (s *Snapshot) Digest() string {
	if s == nil {
		return ""
	}
	return s.digest
}

// Source names where the table came from (a file path or "builtin").
func (s *Snapshot) Source() string {
	if s == nil {
		return ""
	}
	return s.source
}

// LoadedAt is when the snapshot was installed.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// Table holds the current snapshot and swaps it atomically on reload.
type Table struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewTable builds a table from rules. Locked rules override configured ones.
func NewTable(rules map[string]Rule) (*Table, error) {
	t := &Table{now: time.Now}
	if err := t.Reload(rules); err != nil {
		return nil, err
	}
	return t, nil
}

// NewDefaultTable builds a table from DefaultRules.
func NewDefaultTable() *Table {
	t, err := NewTable(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("default policy is invalid: %v", err))
	}
	return t
}

// Snapshot returns the current snapshot.
func (t *Table) Snapshot() *Snapshot {
	return t.current.Load()
}

// Classify is a shorthand for Snapshot().Classify.
func (t *Table) Classify(toolName string) Rule {
	return t.Snapshot().Classify(toolName)
}

// Reload replaces the whole table in one step.
func (t *Table) Reload(rules map[string]Rule) error {
	return t.install(rules, "builtin", "")
}

// ReloadLoaded replaces the table with a parsed policy file.
func (t *Table) ReloadLoaded(loaded Loaded) error {
	return t.install(loaded.Rules, loaded.Source, loaded.Digest)
}

func (t *Table) install(rules map[string]Rule, source, digest string) error {
	merged := make(map[string]Rule, len(rules)+len(lockedRules))
	for name, rule := range rules {
		normalized := normalizeToolName(name)
		if normalized == "" {
			return fmt.Errorf("policy rule with empty tool name")
		}
		risk, err := ParseRiskLevel(string(rule.Risk))
		if err != nil {
			return fmt.Errorf("tool %s: %w", normalized, err)
		}
		action, err := ParseAction(string(rule.Action))
		if err != nil {
			return fmt.Errorf("tool %s: %w", normalized, err)
		}
		merged[normalized] = Rule{Risk: risk, Action: action, Approvable: rule.Approvable}
	}
	for name, rule := range lockedRules {
		merged[name] = rule
	}

	now := time.Now
	if t.now != nil {
		now = t.now
	}
	t.current.Store(&Snapshot{
		rules:    merged,
		digest:   digest,
		source:   source,
		loadedAt: now().UTC(),
	})
	return nil
}
