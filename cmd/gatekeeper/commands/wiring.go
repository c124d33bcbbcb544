package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/executor"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/MEKXH/gatekeeper/internal/notify"
	"github.com/MEKXH/gatekeeper/internal/policy"
	"github.com/MEKXH/gatekeeper/internal/sandbox"
	"github.com/MEKXH/gatekeeper/internal/tools"
)

// gateRuntime is everything `serve` and `gateway` share.
type gateRuntime struct {
	cfg      *config.Config
	engine   *engine.Engine
	policy   *policy.Table
	metrics  *metrics.RuntimeMetrics
	registry *tools.Registry
	logger   *slog.Logger
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*gateRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root := cfg.SandboxRoot()
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	resolver, err := sandbox.NewResolver(root)
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox root: %w", err)
	}

	table, err := loadPolicyTable(cfg, logger)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	auditOpts := []audit.Option{audit.WithLogger(logger)}
	if path := cfg.AuditFile(); path != "" {
		auditOpts = append(auditOpts, audit.WithSink(audit.NewFileSink(path)))
		logger.Info("audit mirror enabled", "path", path)
	}

	m := metrics.NewRuntimeMetrics(cfg.StateDir())
	eng, err := engine.New(engine.Options{
		Policy:     table,
		Resolver:   resolver,
		Executor:   executor.NewFS(),
		Audit:      audit.NewLog(auditOpts...),
		Notifier:   notifier,
		Metrics:    m,
		Logger:     logger,
		AuditLimit: cfg.Audit.DefaultLimit,
	})
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewGatekeeperRegistry(eng)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	logger.Info("gatekeeper ready",
		"sandbox_root", resolver.Root(),
		"policy_source", table.Snapshot().Source(),
		"tools", len(registry.Names()),
	)
	return &gateRuntime{
		cfg:      cfg,
		engine:   eng,
		policy:   table,
		metrics:  m,
		registry: registry,
		logger:   logger,
	}, nil
}

// loadPolicyTable uses the configured policy file, or the built-in policy
// when none is set.
func loadPolicyTable(cfg *config.Config, logger *slog.Logger) (*policy.Table, error) {
	table := policy.NewDefaultTable()
	path := cfg.PolicyFile()
	if path == "" {
		return table, nil
	}
	loaded, err := policy.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := table.ReloadLoaded(loaded); err != nil {
		return nil, fmt.Errorf("install policy %s: %w", path, err)
	}
	if overridden := loaded.Overridden(); len(overridden) > 0 {
		logger.Warn("policy file rules replaced by built-in veto", "tools", overridden)
	}
	return table, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (engine.Notifier, error) {
	notifiers := notify.Multi{notify.NewLog(logger)}
	tg := cfg.Notify.Telegram
	if tg.Enabled {
		telegram, err := notify.NewTelegram(strings.TrimSpace(tg.Token), strings.TrimSpace(tg.ChatID))
		if err != nil {
			return nil, fmt.Errorf("telegram notifier: %w", err)
		}
		notifiers = append(notifiers, telegram)
	}
	return notifiers, nil
}

// watchPolicy hot-reloads the policy file until ctx is done, when enabled.
func (rt *gateRuntime) watchPolicy(ctx context.Context) {
	path := rt.cfg.PolicyFile()
	if !rt.cfg.Policy.Watch || path == "" {
		return
	}
	watcher := policy.NewWatcher(rt.policy, path, nil)
	watcher.SetLogger(rt.logger)
	go func() {
		if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Error("policy watcher stopped", "path", path, "error", err)
		}
	}()
}
