// Command fundsd runs the funds movement HTTP service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lunarbank/funds/api"
	"github.com/lunarbank/funds/cache"
	"github.com/lunarbank/funds/config"
	"github.com/lunarbank/funds/dispatch"
	"github.com/lunarbank/funds/engine"
	"github.com/lunarbank/funds/log"
	"github.com/lunarbank/funds/mongodb"
	"github.com/lunarbank/funds/server"
)

const bootstrapTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fundsd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := log.NewZap(log.ZapConfig{
		Environment: log.Environment(cfg.Environment),
		Level:       cfg.LogLevel,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	mongoClient, err := mongodb.NewClient(ctx, mongodb.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("mongo client: %w", err)
	}

	if err := mongodb.EnsureMovementIndexes(ctx, mongoClient); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	accountCache, err := cache.New(ctx, cache.Config{
		Address:        cfg.Redis.Address,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		AccountTTL:     cfg.Redis.AccountTTL,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	publisher, err := dispatch.NewAMQPPublisher(dispatch.AMQPConfig{
		URL:    cfg.AMQP.URL,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("amqp publisher: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	accounts := mongodb.NewAccountStore(mongoClient)
	ledgerStore := mongodb.NewLedgerStore(mongoClient)

	movements, err := engine.New(engine.Config{
		Accounts:   accounts,
		Ledger:     ledgerStore,
		Cache:      accountCache,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	app := api.NewApp(api.RouterConfig{
		JWTSecret: cfg.JWT.Secret,
		Handler:   api.NewHandler(movements, ledgerStore, accounts, logger),
	})

	return server.NewManager(logger).
		WithHTTPServer(app, cfg.HTTPAddress).
		WithShutdownTimeout(cfg.ShutdownTimeout).
		WithCloser("dispatcher", dispatcher.Close).
		WithCloser("cache", func(_ context.Context) error {
			return accountCache.Close()
		}).
		WithCloser("mongo", mongoClient.Close).
		Run()
}
