package commands

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/policy"
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate the policy table",
	}

	cmd.AddCommand(
		newPolicyShowCmd(),
		newPolicyValidateCmd(),
	)

	return cmd
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy table",
		RunE:  runPolicyShow,
	}
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a policy file without loading it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPolicyValidate,
	}
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	table, err := loadPolicyTable(cfg, slog.Default())
	if err != nil {
		return err
	}
	snap := table.Snapshot()

	fmt.Printf("Source: %s\n", snap.Source())
	if digest := snap.Digest(); digest != "" {
		fmt.Printf("Digest: %s\n", digest)
	}
	fmt.Println()
	printPolicyRules(snap.Rules())
	fmt.Printf("Unlisted tools: %s/%s (approvable=%v)\n",
		policy.FallbackRule.Risk, policy.FallbackRule.Action, policy.FallbackRule.Approvable)
	return nil
}

func printPolicyRules(rules []policy.NamedRule) {
	cols := []column{
		{title: "TOOL", width: 16},
		{title: "RISK", width: 10},
		{title: "ACTION", width: 17},
		{title: "APPROVABLE", width: 10},
		{title: "NOTE", width: 22},
	}
	rows := make([][]cell, 0, len(rules))
	for _, r := range rules {
		note := ""
		switch {
		case r.Locked:
			note = "locked, hard veto"
		case r.HardVeto():
			note = "hard veto"
		}
		rows = append(rows, []cell{
			{text: r.Tool},
			{text: string(r.Risk), color: riskColor(string(r.Risk))},
			{text: string(r.Action)},
			{text: fmt.Sprintf("%v", r.Approvable)},
			{text: note, color: dangerousColor},
		})
	}
	printTable("Policy", cols, rows)
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	loaded, err := policy.LoadFile(args[0])
	if err != nil {
		return err
	}
	if _, err := policy.NewTable(loaded.Rules); err != nil {
		return fmt.Errorf("policy rejected: %w", err)
	}

	names := make([]string, 0, len(loaded.Rules))
	for name := range loaded.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Policy OK: %d rules (%s)\n", len(loaded.Rules), strings.Join(names, ", "))
	fmt.Printf("Digest: %s\n", loaded.Digest)
	overridden := loaded.Overridden()
	sort.Strings(overridden)
	for _, name := range overridden {
		fmt.Printf("Warning: %s is replaced by the built-in veto (DANGEROUS/block, not approvable)\n", name)
	}
	return nil
}
