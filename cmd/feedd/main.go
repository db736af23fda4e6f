// feedd 时间线与通知服务
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/pkg/logger"
	"github.com/d60-Lab/social-feed/pkg/tracing"
)

var (
	configPath string
	cfg        *config.Config
	shutdownFn = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:           "feedd",
	Short:         "Social feed backend: timelines, fan-out and real-time notifications",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if cfg.Sentry.DSN != "" {
			if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
				logger.Warn("sentry init failed", zap.Error(err))
			}
		}
		shutdownFn, err = tracing.Init(cmd.Context(), cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownFn(ctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
		sentry.Flush(2 * time.Second)
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd(), workerCmd(), sweepCmd(), rebuildCmd(), migrateCmd(), tokenCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
