package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"wisefido-ledger/internal/common/database"
	"wisefido-ledger/internal/config"
)

// 整个文件作为一次 Exec 执行：迁移中包含 plpgsql 函数体，不能按分号拆分
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Usage: %s <migration_file.sql> [more.sql ...]", os.Args[0])
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	for _, migrationFile := range os.Args[1:] {
		sqlContent, err := os.ReadFile(migrationFile)
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}

		fmt.Printf("Applying %s...\n", migrationFile)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		_, err = db.ExecContext(ctx, string(sqlContent))
		cancel()
		if err != nil {
			log.Fatalf("Failed to apply %s: %v", migrationFile, err)
		}
		fmt.Printf("✅ %s applied\n\n", migrationFile)
	}

	fmt.Println("✅ Migration completed successfully!")
}
