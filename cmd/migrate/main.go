package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/config"
	"github.com/ereal21/zxczxcz-sub000/internal/db"
	"github.com/ereal21/zxczxcz-sub000/internal/logging"
	"github.com/ereal21/zxczxcz-sub000/internal/migrate"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool, logger); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	logger.Info("migrations applied")
}
