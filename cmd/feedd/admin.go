package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/internal/bootstrap"
	"github.com/d60-Lab/social-feed/internal/realtime"
	"github.com/d60-Lab/social-feed/pkg/database"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete notifications older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())
			n, err := app.Notifications.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("notification sweep done", zap.Int64("deleted", n))
			return nil
		},
	}
}

func rebuildCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "rebuild-feed",
		Short: "Recompute a user's cached timeline from the posts table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user is required")
			}
			app, err := bootstrap.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())
			n, err := app.Worker.Rebuild(cmd.Context(), userID, cfg.Feed.MaxEntries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d: %d entries\n", userID, n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "owner of the timeline to rebuild")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables",
		RunE: func(*cobra.Command, []string) error {
			db, err := database.InitDB(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			logger.Info("migration done")
			return nil
		},
	}
}

// tokenCmd 本地调试用，签发一个访问令牌
func tokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user (development only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user is required")
			}
			tok, err := realtime.NewJWTAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer).Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
