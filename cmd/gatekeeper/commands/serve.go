package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/mcp"
	"github.com/MEKXH/gatekeeper/internal/version"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gatekeeper tools over MCP on stdin/stdout",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	rt, err := buildRuntime(cfg, slog.Default())
	if err != nil {
		return err
	}
	rt.watchPolicy(ctx)

	server := mcp.NewServer(rt.registry, "gatekeeper", version.Version, rt.logger)
	slog.Info("mcp server listening on stdio")
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server failed: %w", err)
	}
	slog.Info("mcp server stopped")
	return nil
}
