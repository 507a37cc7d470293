package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/bulk-mailer/internal/app"
	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/worker"
)

var log = logger.Named("worker")

func main() {
	if err := run(); err != nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.ConfigureLogging(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.SharedQueue() {
		return errors.New("queue.type memory cannot be consumed by a separate worker; use redis or sqs")
	}
	if !a.SharedStore() {
		return errors.New("store.type memory is not shared with the server; use redis or postgres")
	}

	w := worker.NewBulkSendWorker(a.Queue, a.Service, worker.Options{
		Workers:    cfg.Mailer.Workers,
		RetryDelay: cfg.Queue.RetryDelay(),
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	log.Info("worker running", "queue", cfg.Queue.Type, "workers", cfg.Mailer.Workers, "transport", a.Transport.Name())

	<-ctx.Done()
	log.Info("shutting down")
	w.Stop()

	s := w.Stats()
	log.Info("worker stopped", "processed", s.Processed, "requeued", s.Requeued, "dropped", s.Dropped, "failed", s.Failed)
	return nil
}
