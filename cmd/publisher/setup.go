package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/config"
	"github.com/cuongbtq/publish-orchestrator/internal/metrics"
	"github.com/cuongbtq/publish-orchestrator/internal/platform"
	"github.com/cuongbtq/publish-orchestrator/internal/worker"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/brand"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/lease"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/media"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/memstore"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/schedule"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/sheets"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/storage"
	"github.com/cuongbtq/publish-orchestrator/shared/logger"
	"github.com/cuongbtq/publish-orchestrator/shared/minio"
	"github.com/cuongbtq/publish-orchestrator/shared/postgresql"
	"github.com/cuongbtq/publish-orchestrator/shared/rabbitmq"
	"github.com/redis/go-redis/v9"
)

// app holds the wired publisher and the resources it must release
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	worker  *worker.Worker
	metrics *metrics.Metrics
	rabbit  *rabbitmq.Client
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, consume bool) (_ *app, err error) {
	a := &app{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	brands, err := cfg.ResolveAccounts(config.NewEnvSecrets())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve brand accounts: %w", err)
	}
	resolver, err := brand.NewResolver(brands, cfg.Brands.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to build brand resolver: %w", err)
	}

	gate, err := initGate(&cfg.Schedule, log)
	if err != nil {
		return nil, err
	}

	store, err := a.initStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task store: %w", err)
	}

	acquirer, err := a.initMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media: %w", err)
	}

	wcfg := &worker.Config{
		Logger:     log,
		Store:      store,
		Gate:       gate,
		Resolver:   resolver,
		Media:      acquirer,
		Drivers:    platform.NewDrivers(&cfg.Drivers, log),
		FanOut:     cfg.Worker.FanOut,
		JobTimeout: cfg.Worker.JobTimeout,
		LeaseTTL:   cfg.Worker.LeaseTTL,
	}

	if cfg.Redis.Enabled {
		locker, err := a.initLease(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize lease store: %w", err)
		}
		wcfg.Leaser = locker
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
		wcfg.Metrics = a.metrics
	}

	if cfg.RabbitMQ.Enabled && (consume || cfg.RabbitMQ.Events.Enabled) {
		a.rabbit, err = initRabbitMQ(&cfg.RabbitMQ, consume, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.rabbit.Close() })

		if cfg.RabbitMQ.Events.Enabled {
			wcfg.Events = worker.NewBrokerEvents(a.rabbit, cfg.RabbitMQ.Events.RoutingKeyPrefix)
		}
	}
	if consume && a.rabbit == nil {
		return nil, fmt.Errorf("-consume requires rabbitmq.enabled")
	}

	a.worker, err = worker.NewWorker(wcfg)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

func initGate(cfg *config.ScheduleConfig, log *slog.Logger) (*schedule.Gate, error) {
	location, err := schedule.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return schedule.NewGate(&schedule.Config{
		Logger:        log,
		Location:      location,
		DateOrder:     schedule.DateOrder(cfg.DateOrder),
		WaitThreshold: cfg.WaitThreshold,
		Clock:         schedule.SystemClock,
	}), nil
}

func (a *app) initStore(ctx context.Context) (worker.TaskStore, error) {
	switch a.cfg.Store.Backend {
	case config.StoreBackendPostgres:
		db, err := initPostgreSQL(ctx, &a.cfg.Database, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		return storage.NewStorage(db.GetDB(), a.logger), nil

	case config.StoreBackendSheets:
		values, err := sheets.NewValues(ctx, sheets.ValuesConfig{
			SpreadsheetID:   a.cfg.Sheets.SpreadsheetID,
			Worksheet:       a.cfg.Sheets.Worksheet,
			CredentialsFile: a.cfg.Sheets.CredentialsFile,
			Endpoint:        a.cfg.Sheets.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return sheets.New(values, a.logger), nil

	case config.StoreBackendMemory:
		a.logger.Warn("Using in-memory task store, nothing will be persisted")
		return memstore.New(), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(ctx, dbConfig, log)
}

func (a *app) initMedia(ctx context.Context) (*media.Acquirer, error) {
	mcfg := &a.cfg.Media
	acfg := &media.Config{
		Logger:         a.logger,
		TempDir:        mcfg.TempDir,
		Attempts:       mcfg.Attempts,
		Backoff:        mcfg.Backoff,
		MinBytes:       mcfg.MinBytes,
		RequestTimeout: mcfg.RequestTimeout,
	}

	if mcfg.Rehost.Enabled {
		client, err := minio.NewClient(ctx, &minio.Config{
			Endpoint:       mcfg.Rehost.Endpoint,
			PublicEndpoint: mcfg.Rehost.PublicEndpoint,
			AccessKey:      mcfg.Rehost.AccessKey,
			SecretKey:      mcfg.Rehost.SecretKey,
			Bucket:         mcfg.Rehost.Bucket,
			UseSSL:         mcfg.Rehost.UseSSL,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		acfg.Rehoster = media.NewObjectRehoster(client, mcfg.Rehost.Prefix, mcfg.Rehost.Expiry)
	}

	return media.NewAcquirer(acfg), nil
}

func (a *app) initLease(ctx context.Context) (*lease.Locker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })

	locker := lease.NewLocker(client, a.cfg.Redis.KeyPrefix, a.logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := locker.Ping(pingCtx); err != nil {
		return nil, err
	}

	a.logger.Info("Job leases enabled",
		slog.String("addr", a.cfg.Redis.Addr),
	)
	return locker, nil
}

// initRabbitMQ initializes the RabbitMQ client. The trigger queue is only declared when consuming.
func initRabbitMQ(cfg *config.RabbitMQConfig, consume bool, log *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
	if consume {
		rabbitConfig.QueueName = cfg.Queue.Name
		rabbitConfig.QueueDurable = cfg.Queue.Durable
		rabbitConfig.QueueAutoDelete = cfg.Queue.AutoDelete
		rabbitConfig.QueueExclusive = cfg.Queue.Exclusive
	}

	return rabbitmq.NewClient(rabbitConfig, log)
}
