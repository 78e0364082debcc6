package main

import (
	"database/sql"
	"fmt"

	"wisefido-ledger/internal/common/database"
	"wisefido-ledger/internal/config"
	"wisefido-ledger/internal/repository"

	"go.uber.org/zap"
)

// openEventStore 按配置选择事件存储
// 内存存储只在 DB_ENABLED=false 时使用；数据库连接失败返回错误，不回退
func openEventStore(cfg *config.Config, log *zap.Logger) (repository.EventStore, *sql.DB, error) {
	if !cfg.DBEnabled {
		log.Warn("DB disabled, using in-memory event store (events are lost on restart)")
		return repository.NewMemoryEventStore(), nil, nil
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect event store database %s: %w", cfg.Database.Database, err)
	}
	log.Info("DB enabled for wisefido-ledger", zap.String("database", cfg.Database.Database))
	return repository.NewPostgresEventStore(db, log), db, nil
}
