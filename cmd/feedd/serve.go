package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/social-feed/internal/api"
	"github.com/d60-Lab/social-feed/internal/api/middleware"
	"github.com/d60-Lab/social-feed/internal/bootstrap"
	"github.com/d60-Lab/social-feed/pkg/database"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

func serveCmd() *cobra.Command {
	var withWorker, migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket transport and notification relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			if migrate {
				if err := database.Migrate(app.DB); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			return serve(ctx, app, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run fan-out workers in this process")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "auto-migrate tables before serving")
	return cmd
}

func serve(ctx context.Context, app *bootstrap.App, withWorker bool) error {
	gin.SetMode(cfg.Server.Mode)

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
	}
	router := api.NewRouter(api.Options{
		ServiceName: cfg.Tracing.ServiceName,
		Handler:     app.Handler,
		Auth:        app.Auth,
		WebSocket:   app.Transport,
		RateLimiter: limiter,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// 订阅建立后才开始接受连接，避免启动窗口内丢推送
	if err := app.Relay.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		app.Relay.Wait()
		return nil
	})
	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, time.Minute, 10*time.Minute)
			return nil
		})
	}
	if app.Replicator != nil {
		stopReplicator := app.Replicator.Start(cfg.Graph.FanWorkers)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return stopReplicator(stopCtx)
		})
	}
	if withWorker {
		g.Go(func() error { return app.Worker.Run(gctx) })
	}
	return g.Wait()
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run fan-out workers only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			logger.Info("fan-out worker started",
				zap.String("consumer", cfg.Queue.Consumer),
				zap.Int("workers", cfg.Queue.Workers))
			return app.Worker.Run(ctx)
		},
	}
}
