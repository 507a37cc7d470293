// Package app wires the bulk send engine from configuration. The server,
// the worker and the CLI all build their dependencies through New.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/pkg/distlock"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/queue"
	"github.com/ignite/bulk-mailer/internal/recipients"
	"github.com/ignite/bulk-mailer/internal/report"
	"github.com/ignite/bulk-mailer/internal/repository/memory"
	"github.com/ignite/bulk-mailer/internal/repository/postgres"
	"github.com/ignite/bulk-mailer/internal/repository/redisstore"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
	"github.com/ignite/bulk-mailer/internal/transport"
	"github.com/ignite/bulk-mailer/internal/transport/providers"
)

// App holds the wired engine and the connections it owns.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Queue     queue.Queue
	Repo      bulksend.Repository
	Reports   report.Store
	Gateway   *report.Gateway
	Transport transport.Transport
	Service   *bulksend.Service
}

// ConfigureLogging applies the logging section to the global logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.ShouldRedact())
}

// Options overrides parts of the wiring. Tests and the CLI use it.
type Options struct {
	// Transport replaces the configured transport.
	Transport transport.Transport
	// Redis replaces the client built from cfg.Redis.
	Redis *redis.Client
}

// New validates cfg and builds every component it selects.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Redis: opts.Redis}

	if a.Redis == nil && cfg.Redis.Enabled() {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if a.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.Redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	if cfg.Store.Type == "postgres" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.DB = db
	}

	var err error
	switch cfg.Store.Type {
	case "postgres":
		a.Repo = postgres.NewJobRepo(a.DB)
	case "redis":
		a.Repo = redisstore.NewJobRepo(a.Redis, cfg.Mailer.JobTTL())
	default:
		a.Repo = memory.NewJobRepo()
	}

	if a.Queue, err = queue.FromConfig(ctx, cfg.Queue, a.Redis); err != nil {
		a.Close()
		return nil, err
	}
	if a.Reports, err = report.StoreFromConfig(ctx, cfg.Reports); err != nil {
		a.Close()
		return nil, fmt.Errorf("report store: %w", err)
	}
	a.Gateway = report.NewGateway(a.Reports)

	a.Transport = opts.Transport
	if a.Transport == nil {
		if a.Transport, err = providers.New(ctx, cfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("transport: %w", err)
		}
	}

	a.Service = bulksend.NewService(bulksend.Deps{
		Repo:              a.Repo,
		Steps:             a.Queue,
		Locks:             distlock.NewProvider(a.Redis, a.DB, cfg.Mailer.LockTTL()),
		Executor:          bulksend.NewExecutor(a.Transport, cfg.Mailer.Concurrency),
		Extractor:         recipients.NewExtractor(recipients.LimitsFromConfig(cfg.Mailer)),
		Reports:           report.NewGenerator(a.Reports),
		ReportURLBase:     cfg.Mailer.ReportURLBase,
		FallbackBatchSize: cfg.Mailer.DefaultBatchSize,
	})

	logger.Named("app").Info("engine wired",
		"store", cfg.Store.Type, "queue", cfg.Queue.Type, "reports", cfg.Reports.Type,
		"transport", a.Transport.Name())
	return a, nil
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// QueueDepth returns a depth probe for queues that can report one.
func (a *App) QueueDepth() func(ctx context.Context) (int64, error) {
	switch q := a.Queue.(type) {
	case *queue.RedisQueue:
		return q.Len
	case *queue.MemoryQueue:
		return func(context.Context) (int64, error) { return int64(q.Len()), nil }
	default:
		return nil
	}
}

// SharedQueue reports whether steps can be consumed by another process.
func (a *App) SharedQueue() bool {
	_, local := a.Queue.(*queue.MemoryQueue)
	return !local
}

// SharedStore reports whether job state is visible to other processes.
func (a *App) SharedStore() bool {
	_, local := a.Repo.(*memory.JobRepo)
	return !local
}

// Close releases the connections the app owns.
func (a *App) Close() error {
	var errs []error
	if q, ok := a.Queue.(*queue.MemoryQueue); ok {
		q.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
