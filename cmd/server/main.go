package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/bulk-mailer/internal/api"
	"github.com/ignite/bulk-mailer/internal/app"
	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/worker"
)

var log = logger.Named("server")

// checkPortAvailable fails fast when a stale process still holds the port.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func main() {
	if err := run(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.ConfigureLogging(cfg.Logging)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	// Steps on an in-process queue can only be consumed here.
	if !a.SharedQueue() {
		w := worker.NewBulkSendWorker(a.Queue, a.Service, worker.Options{
			Workers:    cfg.Mailer.Workers,
			RetryDelay: cfg.Queue.RetryDelay(),
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start embedded worker: %w", err)
		}
		defer w.Stop()
		log.Info("embedded worker started", "workers", cfg.Mailer.Workers)
	}

	opts := api.RouteOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         api.NewHealthChecker(a.DB, a.Redis, a.QueueDepth()),
	}
	if cfg.Auth.Enabled {
		opts.AuthTokens = cfg.Auth.Tokens
	}
	router := api.SetupRoutes(api.NewHandlers(a.Service, a.Gateway), opts)
	server := api.NewServer(cfg.Server, router)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr(), "auth", cfg.Auth.Enabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", "error", err)
	}
	cancel()

	log.Info("server stopped")
	return nil
}
