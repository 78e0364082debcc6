package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wisefido-ledger/internal/common/database"
	"wisefido-ledger/internal/common/logger"
	"wisefido-ledger/internal/common/mqtt"
	rediscommon "wisefido-ledger/internal/common/redis"
	"wisefido-ledger/internal/config"
	httpapi "wisefido-ledger/internal/http"
	"wisefido-ledger/internal/publisher"
	"wisefido-ledger/internal/service"
	"wisefido-ledger/internal/snapshot"
	"wisefido-ledger/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-ledger")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 事件存储：DB_ENABLED=false 时使用内存存储；启用数据库但连接失败直接退出
	eventStore, db, err := openEventStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open event store", zap.Error(err))
	}

	// 已提交事件分发：Redis Stream + MQTT（均为可选）
	var (
		publishers  publisher.Multi
		redisClient *rediscommon.Client
		mqttClient  *mqtt.Client
	)
	if cfg.RedisEnabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis enabled but unreachable, stream fan-out and snapshots disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			publishers = append(publishers, publisher.NewRedisStreamPublisher(redisClient, cfg.Ledger.EventStream, cfg.Ledger.EventStreamMax, log))
		}
	}
	if cfg.MQTTEnabled {
		if c, err := mqtt.NewClient(&cfg.MQTT, log); err == nil {
			mqttClient = c
			publishers = append(publishers, publisher.NewMQTTPublisher(mqttClient, cfg.Ledger.MQTTTopicPrefix, log))
		} else {
			log.Warn("MQTT enabled but connection failed, MQTT fan-out disabled", zap.Error(err))
		}
	}

	loc := cfg.Ledger.Location()
	conditionSvc := service.NewConditionService(eventStore, cfg.Ledger.RecentWindow, loc, log)
	replaySvc := service.NewReplayService(eventStore, loc, log)
	faults := service.NewFaultInjector(cfg.Ledger.FaultRate, cfg.Ledger.FaultDelay)
	admissionSvc := service.NewTaskAdmissionService(eventStore, faults, publishers, loc, log)

	var seeder httpapi.Seeder
	if cfg.Ledger.SeedEnabled {
		seeder = service.NewSeedService(eventStore, log)
	}

	handler := httpapi.NewLedgerHandler(conditionSvc, replaySvc, admissionSvc, seeder, loc, log)

	if cfg.Snapshot.Enabled {
		if redisClient != nil {
			kv := store.NewRedisKV(redisClient)
			poller := snapshot.NewPoller(conditionSvc, kv, cfg.Snapshot.Interval, cfg.Snapshot.TTL, cfg.Snapshot.Participants, log)
			go poller.Run(ctx)
			handler.WithSnapshots(kv)
		} else {
			log.Warn("Snapshot poller requires Redis, disabled")
		}
	}

	router := httpapi.NewRouter(log)
	router.RegisterLedgerRoutes(handler)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)

	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	_ = rediscommon.Close(redisClient)
	if db != nil {
		_ = database.Close(db)
	}
}
