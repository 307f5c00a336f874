package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/launcher"
	"github.com/spf13/cobra"
)

func startCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the configured servers",
		Long: `Start every server listed in the configuration and block until
SIGINT or SIGTERM. On shutdown, servers stop accepting, let in-flight
exchanges finish and release their servlets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file (default $XDG_CONFIG_HOME/dittonet/config.yaml)")

	return cmd
}

func runStart(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateServers(cfg)
	if err != nil {
		return fmt.Errorf("failed to create servers: %w", err)
	}

	l := launcher.New(cfg.Server.ShutdownTimeout)
	l.SetMetricsServer(metricsResult.Server)
	for _, a := range adapters {
		if err := l.AddAdapter(a); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("DittoNet %s starting %d server(s)", version, len(adapters))
	if err := l.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
