package main

import (
	"context"
	"fmt"
	"net/http"
	_ "time/tzdata"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/config"
	"github.com/richardliu001/ucm-wallet/internal/logger"
	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
	"github.com/richardliu001/ucm-wallet/internal/service"
	httptransport "github.com/richardliu001/ucm-wallet/internal/transport/http"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.New(cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if cfg.Postgres.AutoMigrate {
		if err := gdb.AutoMigrate(model.All()...); err != nil {
			log.Fatalf("auto-migrate: %v", err)
		}
	}

	// 4. redis, optional
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warnw("redis unavailable, balance cache disabled", "addr", cfg.Redis.Addr, "error", err)
			rdb = nil
		}
	}

	// 5. repo & services; events leave through the outbox poller
	repository := repo.NewRepository(gdb, rdb, nil, log)
	repository.Schema().Warm(context.Background())
	sched, err := service.NewSchedule(cfg.Ledger)
	if err != nil {
		log.Fatalf("ledger schedule: %v", err)
	}
	referral, err := service.NewReferralService(repository, sched, log)
	if err != nil {
		log.Fatalf("referral service: %v", err)
	}
	h := httptransport.NewHandler(
		service.NewWalletService(repository, sched, log),
		service.NewRewardService(repository, sched, log),
		referral,
		service.NewProgressService(repository, sched, log),
		log,
	)

	// 6. gin router
	router := httptransport.NewRouter(h, cfg.RateLimit, log)

	// 7. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("ucm-wallet listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
