// Worker consumes application events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, EVENTS_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL. The backend settings
// are validated as for the server; BACKEND_DRIVER=memory with any SUPABASE_JWT_SECRET will do.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"gymhub/backend/internal/config"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/telemetry/loki"
)

const (
	pushTimeout  = 10 * time.Second
	pushAttempts = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		zl.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		zl.Fatal("worker: LOKI_URL is required", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.EventsKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer reader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	zl.Info("worker: consuming",
		zap.String("topic", cfg.EventsKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL),
	)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				zl.Info("worker: stopped")
				return
			}
			zl.Warn("worker: kafka fetch failed", zap.Error(err))
			continue
		}
		if err := push(ctx, client, msg.Value); err != nil {
			// Dropped after retries so one bad line cannot stall the partition.
			zl.Error("worker: loki push failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			zl.Warn("worker: commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func push(ctx context.Context, client *loki.Client, value []byte) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		return struct{}{}, client.PushEventJSON(pushCtx, value)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(pushAttempts),
	)
	return err
}
