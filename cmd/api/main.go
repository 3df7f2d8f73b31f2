package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ereal21/zxczxcz-sub000/internal/config"
	"github.com/ereal21/zxczxcz-sub000/internal/db"
	"github.com/ereal21/zxczxcz-sub000/internal/gateway"
	"github.com/ereal21/zxczxcz-sub000/internal/httpserver"
	"github.com/ereal21/zxczxcz-sub000/internal/logging"
	"github.com/ereal21/zxczxcz-sub000/internal/metrics"
	"github.com/ereal21/zxczxcz-sub000/internal/migrate"
	"github.com/ereal21/zxczxcz-sub000/internal/notify"
	"github.com/ereal21/zxczxcz-sub000/internal/publisher"
	cartrepo "github.com/ereal21/zxczxcz-sub000/internal/repository/cart"
	customerrepo "github.com/ereal21/zxczxcz-sub000/internal/repository/customer"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/intent"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/inventory"
	"github.com/ereal21/zxczxcz-sub000/internal/repository/ledger"
	productrepo "github.com/ereal21/zxczxcz-sub000/internal/repository/product"
	promorepo "github.com/ereal21/zxczxcz-sub000/internal/repository/promo"
	cartsvc "github.com/ereal21/zxczxcz-sub000/internal/service/cart"
	"github.com/ereal21/zxczxcz-sub000/internal/service/checkout"
	customersvc "github.com/ereal21/zxczxcz-sub000/internal/service/customer"
	"github.com/ereal21/zxczxcz-sub000/internal/service/fulfillment"
	productsvc "github.com/ereal21/zxczxcz-sub000/internal/service/product"
	"github.com/ereal21/zxczxcz-sub000/internal/service/reservation"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	if err := migrate.Apply(ctx, dbpool, logger); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	intents, closeIntents, err := openIntentStore(cfg, dbpool, logger)
	if err != nil {
		logger.Fatal("open intent store", zap.Error(err))
	}
	defer closeIntents()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, logger)
		if err != nil {
			logger.Fatal("init telegram", zap.Error(err))
		}
		notifier = tg
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, notifications are dropped")
	}

	var events publisher.Publisher = publisher.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		events = publisher.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	defer events.Close()

	productRepo := productrepo.NewPostgres(dbpool, logger)
	stockRepo := inventory.NewPostgres(dbpool, logger)
	cartRepo := cartrepo.NewPostgres(dbpool)
	ledgerRepo := ledger.NewPostgres(dbpool, logger)
	customerRepo := customerrepo.NewPostgres(dbpool, logger)

	cartService := cartsvc.New(cartRepo, productRepo, promorepo.NewPostgres(dbpool))
	reservationService := reservation.New(stockRepo, productRepo, notifier, logger)
	dispatcher := fulfillment.NewDispatcher(
		ledgerRepo,
		stockRepo,
		customerRepo,
		cartService,
		notifier,
		events,
		fulfillment.LoyaltyRules{
			TicketsPerUnit:  cfg.TicketsPerUnit,
			ReferralPercent: cfg.ReferralPercent,
			LevelThresholds: cfg.LevelThresholds,
		},
		fulfillment.Chats{Owner: cfg.OwnerChatID, Operator: cfg.OperatorChatID},
		logger,
	)
	checkoutService := checkout.New(checkout.Deps{
		Carts:   cartService,
		Reserve: reservationService,
		Ledger:  ledgerRepo,
		Gateway: gateway.NewClient(gateway.Config{
			BaseURL:     cfg.GatewayURL,
			APIKey:      cfg.GatewayAPIKey,
			CallbackURL: cfg.GatewayCallbackURL,
			Timeout:     cfg.GatewayTimeout,
		}, logger),
		Intents:    intents,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Metrics:    m,
		Logger:     logger,
	}, checkout.Config{
		PollDelay:     cfg.PollDelay,
		PollAttempts:  cfg.PollAttempts,
		PollBackoff:   cfg.PollBackoff,
		IntentTTL:     cfg.IntentTTL,
		SettleTimeout: cfg.SettleTimeout,
	})
	defer checkoutService.Close()

	if cfg.GatewayIPNSecret == "" {
		logger.Warn("GATEWAY_IPN_SECRET not set, webhook signatures are not verified")
	}
	ready := func(ctx context.Context) error { return db.Ping(ctx, dbpool) }
	srv := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Carts:        cartService,
		Checkout:     checkoutService,
		Restock:      reservationService,
		Catalog:      productsvc.New(productRepo, stockRepo),
		Profiles:     customersvc.New(customerRepo, ledgerRepo),
		IPNSecret:    cfg.GatewayIPNSecret,
		Ready:        ready,
		Metrics:      m,
		Gatherer:     reg,
		AllowOrigins: cfg.CORSOrigins,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		checkoutService.RunReconciler(sweepCtx, cfg.ReconcileInterval)
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
	stopSweep()
	<-sweepDone
}

func openIntentStore(cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) (intent.Store, func(), error) {
	switch cfg.IntentStore {
	case "postgres":
		return intent.NewPostgres(pool, logger), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("intent store on redis", zap.String("addr", cfg.RedisAddr))
		return intent.NewRedis(client, logger), func() { _ = client.Close() }, nil
	case "memory":
		logger.Warn("intent store in memory, pending checkouts are lost on restart")
		return intent.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown INTENT_STORE %q", cfg.IntentStore)
	}
}
