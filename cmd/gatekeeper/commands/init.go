package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/config"
)

const defaultPolicyYAML = `# Gatekeeper policy table.
# risk_level: SAFE | SENSITIVE | DANGEROUS
# default_action: allow | require_approval | block
# allow_approval only matters for block: it lets a human override the block.
# run_shell is always blocked and never approvable, whatever this file says.
read_file:
  risk_level: SAFE
  default_action: allow
  allow_approval: false
write_file:
  risk_level: SENSITIVE
  default_action: require_approval
  allow_approval: true
delete_file:
  risk_level: DANGEROUS
  default_action: block
  allow_approval: true
run_shell:
  risk_level: DANGEROUS
  default_action: block
  allow_approval: false
`

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Gatekeeper configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	configDir := filepath.Dir(path)
	cfg := config.DefaultConfig()
	cfg.Policy.File = filepath.Join(configDir, "policy.yaml")

	dirs := []string{
		configDir,
		cfg.SandboxRoot(),
		cfg.StateDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(cfg.Policy.File); os.IsNotExist(err) {
		if err := os.WriteFile(cfg.Policy.File, []byte(defaultPolicyYAML), 0644); err != nil {
			return fmt.Errorf("failed to write policy file: %w", err)
		}
	}

	if err := config.SaveTo(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Gatekeeper initialized!\n")
	fmt.Printf("Config: %s\n", path)
	fmt.Printf("Policy: %s\n", cfg.Policy.File)
	fmt.Printf("Sandbox: %s\n", cfg.SandboxRoot())
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Review %s\n", cfg.Policy.File)
	fmt.Printf("2. Point your MCP client at 'gatekeeper serve', or run 'gatekeeper gateway'\n")

	return nil
}
