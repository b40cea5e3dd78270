// Package bootstrap builds the runtime shared by the HTTP server and the lambdas from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/idempotency"
	"github.com/mycotrack/wallet-ledger/pkg/lock"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/metrics"
	"github.com/mycotrack/wallet-ledger/pkg/notify"
	"github.com/mycotrack/wallet-ledger/pkg/reconciliation"
	"github.com/mycotrack/wallet-ledger/pkg/redis"
	"github.com/mycotrack/wallet-ledger/pkg/scheduler"
	"github.com/mycotrack/wallet-ledger/pkg/storage"
	dydbstore "github.com/mycotrack/wallet-ledger/pkg/storage/dynamodb"
	"github.com/mycotrack/wallet-ledger/pkg/storage/filestore"
	"github.com/mycotrack/wallet-ledger/pkg/storage/gormstore"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

// Runtime holds the wired components. Redis and Scheduler are nil when not configured.
type Runtime struct {
	Config      *config.Config
	Logger      *logger.Logger
	Store       storage.Storage
	Redis       *redis.Client
	Coordinator *transfer.Coordinator
	Reconciler  *reconciliation.Service
	Scheduler   scheduler.Scheduler

	awsConfig *aws.Config
	notifier  *notify.Async
	closers   []func() error
}

// New wires every component from cfg and makes sure the platform account exists.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if err := cfg.CheckLock(); err != nil {
		return nil, fmt.Errorf("bootstrap lock: %w", err)
	}
	rt := &Runtime{Config: cfg, Logger: logg}

	if err := rt.openStore(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}

	if cfg.Lock.Driver == config.LockDriverRedis || cfg.Idempotency.CacheDriver == config.CacheDriverRedis {
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		rt.Redis = client
		rt.closers = append(rt.closers, client.Close)
	}

	locker, err := rt.locker()
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	cache, err := rt.cache()
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	gateway, err := rt.gateway(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.notifier = notify.NewAsync(gateway, cfg.Notify.BufferSize, logg)

	rt.Reconciler, err = reconciliation.NewService(reconciliation.Dependencies{
		Accounts: rt.Store,
		Ledger:   rt.Store,
		Gateway:  rt.notifier,
		Metrics:  metrics.NewReconciliationMetrics(reg),
		Logger:   logg,
	}, reconciliation.OptionsFromConfig(cfg.Reconciliation))
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Coordinator, err = transfer.NewCoordinator(transfer.Dependencies{
		Accounts: rt.Store,
		Ledger:   rt.Store,
		Guard:    idempotency.NewGuard(rt.Store, cache, logg),
		Locker:   locker,
		Repairer: rt.Reconciler,
		Gateway:  rt.notifier,
		Metrics:  metrics.NewTransferMetrics(reg),
		Logger:   logg,
	}, transfer.OptionsFromConfig(cfg.Transfer))
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	if _, err := rt.Coordinator.EnsurePlatformAccount(ctx); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("ensure platform account: %w", err)
	}

	if cfg.Scheduler.QueueURL != "" {
		awsCfg, err := rt.aws(ctx)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.Scheduler = scheduler.NewSQSScheduler(sqs.NewFromConfig(awsCfg), cfg.Scheduler.QueueURL)
	}

	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.Storage.Driver {
	case config.StorageDriverFile:
		store, err := filestore.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("open file store: %w", err)
		}
		rt.Store = store
	case config.StorageDriverDynamoDB:
		awsCfg, err := rt.aws(ctx)
		if err != nil {
			return err
		}
		rt.Store = dydbstore.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.AccountsTable, cfg.DynamoDB.LedgerTable)
	case config.StorageDriverPostgres:
		store, err := gormstore.Open(ctx, cfg.DB, rt.Logger)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		if cfg.App.IsDev() {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate postgres store: %w", err)
			}
		}
		rt.Store = store
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	rt.Logger.Info(rt.Logger.WithField(ctx, "driver", cfg.Storage.Driver), "storage ready")
	return nil
}

func (rt *Runtime) locker() (lock.Locker, error) {
	if rt.Config.Lock.Driver == config.LockDriverLocal {
		return lock.NewLocal(), nil
	}
	locker, err := lock.NewRedis(rt.Redis, rt.Config.Lock.TTL, rt.Config.Lock.PollInterval, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("create redis locker: %w", err)
	}
	return locker, nil
}

func (rt *Runtime) cache() (idempotency.Cache, error) {
	cfg := rt.Config.Idempotency
	switch cfg.CacheDriver {
	case config.CacheDriverRedis:
		cache, err := idempotency.NewRedisCache(rt.Redis, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("create redis idempotency cache: %w", err)
		}
		return cache, nil
	case config.CacheDriverNone:
		return nil, nil
	default:
		return idempotency.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL), nil
	}
}

func (rt *Runtime) gateway(ctx context.Context) (notify.Gateway, error) {
	switch rt.Config.Notify.Driver {
	case config.NotifyDriverSQS:
		awsCfg, err := rt.aws(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewSQSGateway(sqs.NewFromConfig(awsCfg), rt.Config.Notify.QueueURL), nil
	case config.NotifyDriverNone:
		return notify.NoOp{}, nil
	default:
		return notify.NewLogGateway(rt.Logger), nil
	}
}

func (rt *Runtime) aws(ctx context.Context) (aws.Config, error) {
	if rt.awsConfig != nil {
		return *rt.awsConfig, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	rt.awsConfig = &cfg
	return cfg, nil
}

// Close drains pending notifications and releases connections.
func (rt *Runtime) Close(ctx context.Context) error {
	var err error
	if rt.notifier != nil {
		if closeErr := rt.notifier.Close(ctx); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("drain notifications: %w", closeErr))
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	return err
}
