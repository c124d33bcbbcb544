package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/config"
)

var (
	logLevelOverride string
	configPathFlag   string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gatekeeper",
		Short:        "Gatekeeper - policy gate for agent tool calls",
		Long:         `Gatekeeper sits between an LLM agent and its tools: every call is confined to a sandbox, classified by policy, queued for human approval when needed, and recorded in a tamper-evident audit log.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Config file path (default ~/.gatekeeper/config.json)")

	cmd.AddCommand(
		NewInitCmd(),
		NewServeCmd(),
		NewGatewayCmd(),
		NewPolicyCmd(),
		NewApprovalCmd(),
		NewAuditCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}

func configPath() string {
	if path := strings.TrimSpace(configPathFlag); path != "" {
		return config.ExpandHome(path)
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.LoadFrom(configPath())
}
