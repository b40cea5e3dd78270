package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mycotrack/wallet-ledger/pkg/bootstrap"
	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
)

var (
	logg *logger.Logger
	rt   *bootstrap.Runtime
)

func init() {
	logg = logger.New(logger.Options{ServiceName: "reconciliation-lambda"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "reconciliation-lambda",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	rt, err = bootstrap.New(context.Background(), cfg, logg, prometheus.NewRegistry())
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap runtime", err)
		os.Exit(1)
	}
}

// HandleRequest is triggered by an EventBridge schedule and sweeps every account.
func HandleRequest(ctx context.Context) error {
	logg.Info(ctx, "starting reconciliation sweep")

	summary, err := rt.Reconciler.ReconcileAll(ctx)
	if summary != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"checked":  summary.Checked,
			"in_sync":  summary.InSync,
			"repaired": summary.Repaired,
			"flagged":  summary.Flagged,
			"failed":   summary.Failed,
		}), "reconciliation sweep finished")
	}
	if err != nil {
		logg.Error(ctx, "reconciliation sweep had failures", err)
		return err
	}
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
