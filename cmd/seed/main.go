package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/config"
	"github.com/ereal21/zxczxcz-sub000/internal/db"
	"github.com/ereal21/zxczxcz-sub000/internal/logging"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/inventory"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/product"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/promo"
	"github.com/ereal21/zxczxcz-sub000/internal/seed"
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

	err = seed.Apply(ctx,
		product.NewPostgres(pool, logger),
		inventory.NewPostgres(pool, logger),
		promo.NewPostgres(pool),
		logger,
	)
	if err != nil {
		logger.Fatal("seed apply", zap.Error(err))
	}
}
