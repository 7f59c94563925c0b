package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"complaintengine/app"
	"complaintengine/config"
	"complaintengine/logging"
	"complaintengine/middleware"
	"complaintengine/routes"
	"complaintengine/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Warn(".env file not found, using environment variables")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var escalationWorker *worker.EscalationWorker
	if cfg.Escalation.Enabled {
		escalationWorker = worker.NewEscalationWorker(a.Services.Escalations, cfg.Escalation.Interval, logger)
		escalationWorker.Start(ctx)
	} else {
		logger.Info("escalation worker disabled")
	}

	notificationWorker := worker.NewNotificationWorker(a.Services.Notifications, cfg.Notification.RetryInterval, logger)
	notificationWorker.Start(ctx)

	router := routes.SetupRoutes(a.Services, routes.Options{
		Auth:         cfg.Auth,
		Notification: cfg.Notification,
		DB:           a.DB,
		Gatherer:     a.Registry,
		Logger:       logger,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           middleware.CORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if escalationWorker != nil {
		escalationWorker.Stop()
	}
	notificationWorker.Stop()
	logger.Info("server stopped")
	return nil
}
