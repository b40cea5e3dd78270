package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mycotrack/wallet-ledger/pkg/bootstrap"
	"github.com/mycotrack/wallet-ledger/pkg/config"
	"github.com/mycotrack/wallet-ledger/pkg/logger"
	"github.com/mycotrack/wallet-ledger/pkg/scheduler"
	"github.com/mycotrack/wallet-ledger/pkg/transfer"
)

var (
	logg *logger.Logger
	rt   *bootstrap.Runtime
)

func init() {
	logg = logger.New(logger.Options{ServiceName: "settlement-lambda"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "settlement-lambda",
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

// HandleRequest settles queued transfers. Failed records are reported back so SQS only redelivers
// those; the coordinator replays any reference that already settled.
func HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse
	for _, message := range sqsEvent.Records {
		msgCtx := logg.WithField(ctx, "message_id", message.MessageId)

		req, err := scheduler.DecodeTransfer(message.Body)
		if err != nil {
			// Malformed bodies never succeed; drop them instead of redelivering.
			logg.Error(msgCtx, "discarding undecodable transfer message", err)
			continue
		}

		msgCtx = logg.WithField(msgCtx, "reference", req.Reference)
		result, err := rt.Coordinator.Transfer(msgCtx, *req)
		if err != nil {
			if typed := transfer.As(err); typed != nil && !typed.Metadata().Retryable {
				logg.Warn(logg.WithField(msgCtx, "code", string(typed.Code())), "transfer rejected")
				continue
			}
			logg.Error(msgCtx, "failed to settle transfer", err)
			response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
			continue
		}

		logg.Info(logg.WithFields(msgCtx, map[string]any{
			"transaction_id": result.TransactionID,
			"replayed":       result.Replayed,
			"deferred":       result.Deferred,
		}), "transfer settled")
	}
	return response, nil
}

func main() {
	lambda.Start(HandleRequest)
}
