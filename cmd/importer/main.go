package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/config"
	"github.com/ereal21/zxczxcz-sub000/internal/db"
	"github.com/ereal21/zxczxcz-sub000/internal/importer"
	"github.com/ereal21/zxczxcz-sub000/internal/logging"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/inventory"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/product"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to stock CSV (product_id,kind,value)")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

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

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, inventory.NewPostgres(pool, logger), product.NewPostgres(pool, logger), logger)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatal("import failed", zap.Error(err), zap.Int("imported", count))
	}

	fmt.Printf("Imported %d stock units in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}
