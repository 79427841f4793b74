package main

import (
	"context"
	"fmt"
	"time"

	"github.com/IndustriasCannon/shipwatch/config"
	"github.com/IndustriasCannon/shipwatch/internal/broker/kafka"
	"github.com/IndustriasCannon/shipwatch/internal/cache"
	"github.com/IndustriasCannon/shipwatch/internal/cache/rediscache"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider/fake"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider/shipsgohttp"
	"github.com/IndustriasCannon/shipwatch/internal/ratelimit"
	"github.com/IndustriasCannon/shipwatch/internal/services/scheduler"
	"github.com/IndustriasCannon/shipwatch/internal/services/syncer"
	"github.com/IndustriasCannon/shipwatch/internal/storage/pgshipments"
)

type workerFactories struct {
	newStorage        func(cfg *config.Config) (repo syncer.Repository, closeFn func(), err error)
	newProducer       func(cfg *config.Config) syncer.Producer
	newCache          func(cfg *config.Config) cache.BytesCache
	newProviderClient func(cfg *config.Config, limiter *ratelimit.Limiter) provider.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (syncer.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgshipments.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) syncer.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newProviderClient: func(cfg *config.Config, limiter *ratelimit.Limiter) provider.Client {
			// Без api-ключа ходить к боевому провайдеру бессмысленно — fake.
			if cfg.ShipWatch.ProviderMode == "shipsgo" && cfg.ShipWatch.ProviderAPIKey != "" {
				return shipsgohttp.New(cfg.ShipWatch.ProviderBaseURL, cfg.ShipWatch.ProviderAPIKey, limiter)
			}
			return fake.New()
		},
	}
}

func RunShipWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	alertsTopic := cfg.Kafka.AlertCreatedTopicName
	if alertsTopic == "" {
		alertsTopic = "shipwatch.alert.created"
	}
	shipmentsTopic := cfg.Kafka.ShipmentUpdatedTopicName
	if shipmentsTopic == "" {
		shipmentsTopic = "shipwatch.shipment.updated"
	}

	syncInterval := time.Duration(cfg.ShipWatch.SyncIntervalSeconds) * time.Second
	if syncInterval <= 0 {
		syncInterval = 6 * time.Hour
	}
	positionsInterval := time.Duration(cfg.ShipWatch.PositionsIntervalSeconds) * time.Second
	if positionsInterval <= 0 {
		positionsInterval = 30 * time.Minute
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	c := f.newCache(cfg)
	limiter := ratelimit.New(cfg.ShipWatch.ProviderRateLimitPerMinute, time.Minute)
	providerClient := f.newProviderClient(cfg, limiter)

	svc := syncer.New(repo, providerClient, producer, alertsTopic, shipmentsTopic).
		WithSettings(cfg.ShipWatch.SyncBatchSize, cfg.ShipWatch.SyncShipmentLimit).
		WithPositionsCache(c, time.Duration(cfg.ShipWatch.PositionsCacheTTLSeconds)*time.Second)

	sched := scheduler.New(svc).WithSettings(syncInterval, positionsInterval)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:  cfg.ShipWatch.WorkerHTTPAddr,
			scheduler: sched,
			limiter:   limiter,
			cfg:       cfg,
		})
	}()

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-schedErr:
		return err
	case err := <-httpErr:
		return err
	}
}
