package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mycotrack/wallet-ledger/pkg/bootstrap"
	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/cron"
	"github.com/mycotrack/wallet-ledger/pkg/handlers"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/metrics"
	"github.com/mycotrack/wallet-ledger/pkg/reconciliation"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "wallet-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logg, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap runtime", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logg.Error(closeCtx, "error closing runtime", err)
		}
	}()

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: handlers.NewRouter(handlers.Dependencies{
			Accounts:    rt.Store,
			Ledger:      rt.Store,
			Coordinator: rt.Coordinator,
			Scheduler:   rt.Scheduler,
			Reconciler:  rt.Reconciler,
			Metrics:     promhttp.Handler(),
			Logger:      logg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Reconciler.Run(gctx)
	})
	if cfg.Reconciliation.Enabled {
		cronService, err := newCronService(ctx, rt, logg)
		if err != nil {
			logg.Error(ctx, "failed to create cron service", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return cronService.Run(gctx)
		})
	}
	g.Go(func() error {
		logg.Info(logg.WithFields(gctx, map[string]any{"env": cfg.App.Env, "addr": addr}), "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}

func newCronService(ctx context.Context, rt *bootstrap.Runtime, logg *logger.Logger) (*cron.Service, error) {
	cfg := rt.Config.Reconciliation

	var lock cron.Lock = cron.NewLocalLock()
	if rt.Config.Lock.Driver == config.LockDriverRedis {
		redisLock, err := cron.NewRedisLock(rt.Redis, rt.Redis.CronKey(cfg.CronLockKey), cfg.CronLockTTL)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}

	registry, err := cron.NewRegistry(reconciliation.NewJob(rt.Reconciler))
	if err != nil {
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "interval", cfg.Interval.String()), "reconciliation sweep scheduled")
	return cron.NewService(cron.Options{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Interval,
		Budget:   cfg.CronLockTTL * 9 / 10,
	})
}
