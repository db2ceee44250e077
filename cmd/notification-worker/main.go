// cmd/notification-worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kennel-notifications/internal/api"
	"kennel-notifications/internal/bootstrap"
	"kennel-notifications/internal/common/config"
	"kennel-notifications/internal/common/logger"
	processdue "kennel-notifications/internal/workers/notifications/process-due"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})
	zapLog.Info("Starting notification worker...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, cfg, "notification-worker", log)
	if err != nil {
		zapLog.Fatal("failed to assemble notification worker", zap.Error(err))
	}
	defer components.Close()

	readiness := map[string]api.Pinger{"postgres": components.Postgres}
	if components.Redis != nil {
		readiness["redis"] = components.Redis
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(api.Options{
			Runner:       components.Handler,
			TriggerToken: cfg.Notifications.TriggerToken,
			Readiness:    readiness,
			Logger:       log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Notifications.TriggerToken == "" {
		zapLog.Warn("NOTIFICATIONS_TRIGGER_TOKEN not set, HTTP trigger disabled")
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	poller := processdue.NewPoller(
		components.Handler,
		components.Worker.PollInterval,
		components.Worker.RunOnStart,
		log,
	)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	select {
	case <-pollerDone:
	case <-shutdownCtx.Done():
		zapLog.Warn("Timed out waiting for in-flight pass")
	}

	zapLog.Info("Notification worker stopped gracefully")
}
