package main

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/config"
	"github.com/richardliu001/ucm-wallet/internal/logger"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

const batchSize = 100

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New(cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	// the poller never touches balances, so no cache
	r := repo.NewRepository(gdb, nil, kw, log)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	log.Info("ucm-wallet poller started")
	for range ticker.C {
		ctx := context.Background()
		events, err := r.PollOutbox(ctx, batchSize)
		if err != nil {
			log.Errorf("poll outbox: %v", err)
			continue
		}
		for _, evt := range events {
			if err := r.PublishEvent(ctx, evt); err != nil {
				log.Errorw("publish", "id", evt.ID, "event_id", evt.EventID, "error", err)
				// keep per-user order: stop this batch at the first failure
				break
			}
			if err := r.MarkOutboxProcessed(ctx, evt.ID); err != nil {
				log.Errorw("mark processed", "id", evt.ID, "error", err)
				break
			}
			log.Debugw("event sent", "id", evt.ID, "type", evt.EventType)
		}
	}
}
