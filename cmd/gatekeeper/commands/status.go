package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Gatekeeper configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(headerStyle.Render("Gatekeeper Status"))

	fmt.Println("Config")
	fmt.Printf("  Path: %s\n", configPath())
	if _, err := os.Stat(configPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'gatekeeper init')")
	}

	fmt.Println("\nSandbox")
	fmt.Printf("  Root: %s\n", cfg.SandboxRoot())
	if info, err := os.Stat(cfg.SandboxRoot()); err == nil && info.IsDir() {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (created on first serve)")
	}

	fmt.Println("\nPolicy")
	if path := cfg.PolicyFile(); path == "" {
		fmt.Println("  Source: builtin")
	} else {
		fmt.Printf("  Source: %s\n", path)
		if loaded, err := policy.LoadFile(path); err != nil {
			fmt.Printf("  Status: invalid (%v)\n", err)
		} else {
			fmt.Printf("  Status: OK (%d rules, %s)\n", len(loaded.Rules), loaded.Digest)
		}
		fmt.Printf("  Hot reload: %v\n", cfg.Policy.Watch)
	}

	fmt.Println("\nAudit")
	fmt.Printf("  Default limit: %d\n", cfg.Audit.DefaultLimit)
	if path := cfg.AuditFile(); path != "" {
		fmt.Printf("  Mirror: %s\n", path)
	} else {
		fmt.Println("  Mirror: disabled (in-memory only)")
	}

	fmt.Println("\nGateway")
	fmt.Printf("  Address: %s\n", cfg.GatewayAddr())
	if strings.TrimSpace(cfg.Gateway.Token) != "" {
		fmt.Println("  Auth: token configured")
	} else {
		fmt.Println("  Auth: no token (open)")
	}

	fmt.Println("\nNotifications")
	fmt.Println("  log: enabled")
	tg := "disabled"
	if cfg.Notify.Telegram.Enabled {
		tg = "enabled (chat " + cfg.Notify.Telegram.ChatID + ")"
	}
	fmt.Printf("  telegram: %s\n", tg)

	fmt.Println("\nRuntime Metrics")
	snap, err := metrics.ReadRuntimeSnapshot(cfg.StateDir())
	switch {
	case err != nil:
		fmt.Printf("  unavailable (%v)\n", err)
	case !snap.HasData():
		fmt.Println("  no runtime data yet")
	default:
		printRuntimeMetrics(snap)
	}

	return nil
}

func printRuntimeMetrics(snap metrics.RuntimeSnapshot) {
	fmt.Printf("  Updated: %s\n", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Decisions: %d total\n", snap.TotalDecisions())
	for _, d := range audit.Decisions {
		if n := snap.Decisions[string(d)]; n > 0 {
			fmt.Printf("    %s: %d\n", d, n)
		}
	}
	ex := snap.Executor
	fmt.Printf("  Executor: %d calls, errors %.1f%%, timeouts %.1f%%, avg %.0fms, p95~%dms, max %dms\n",
		ex.Total, ex.ErrorRatio()*100, ex.TimeoutRatio()*100, ex.AvgLatencyMs(), ex.P95ProxyLatencyMs, ex.MaxLatencyMs)
	fmt.Printf("  Notifications: %d sent, failures %.1f%%\n", snap.Notify.Attempts, snap.Notify.FailureRatio()*100)
}
