package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IndustriasCannon/shipwatch/config"
	"github.com/IndustriasCannon/shipwatch/internal/api/shipments_api"
	"github.com/IndustriasCannon/shipwatch/internal/broker/kafka"
	"github.com/IndustriasCannon/shipwatch/internal/cache/rediscache"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider/fake"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider/shipsgohttp"
	"github.com/IndustriasCannon/shipwatch/internal/ratelimit"
	"github.com/IndustriasCannon/shipwatch/internal/services/alertsfeed"
	"github.com/IndustriasCannon/shipwatch/internal/services/syncer"
	"github.com/IndustriasCannon/shipwatch/internal/storage/pgshipments"
)

type shipAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     shipAPIOpts
	api      *shipments_api.ShipmentsAPI
	consumer *kafka.Consumer
	feed     *alertsfeed.Feed
	closeDB  func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShipWatch.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShipWatch.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ship-api"
	}
	alertsTopic := cfg.Kafka.AlertCreatedTopicName
	if alertsTopic == "" {
		alertsTopic = "shipwatch.alert.created"
	}
	shipmentsTopic := cfg.Kafka.ShipmentUpdatedTopicName
	if shipmentsTopic == "" {
		shipmentsTopic = "shipwatch.shipment.updated"
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	limiter := ratelimit.New(cfg.ShipWatch.ProviderRateLimitPerMinute, time.Minute)
	providerClient := newProviderClient(cfg, limiter)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	svc := syncer.New(st, providerClient, producer, alertsTopic, shipmentsTopic).
		WithSettings(cfg.ShipWatch.SyncBatchSize, cfg.ShipWatch.SyncShipmentLimit).
		WithPositionsCache(rc, time.Duration(cfg.ShipWatch.PositionsCacheTTLSeconds)*time.Second)

	api := shipments_api.New(svc, st).
		WithCache(rc).
		WithLimiter(limiter).
		WithRecentAlertsLimit(cfg.ShipWatch.RecentAlertsLimit)

	consumer := kafka.NewConsumer(brokers, alertsTopic, consumerGroup)
	feed := alertsfeed.New(rc).WithSettings(cfg.ShipWatch.RecentAlertsLimit, 0)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			httpAddr:      httpAddr,
			topic:         alertsTopic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		consumer: consumer,
		feed:     feed,
		closeDB:  st.Close,
	}
}

func newProviderClient(cfg *config.Config, limiter *ratelimit.Limiter) provider.Client {
	// Без api-ключа против боевого провайдера делать нечего — fallback на fake.
	if cfg.ShipWatch.ProviderMode == "shipsgo" && cfg.ShipWatch.ProviderAPIKey != "" {
		return shipsgohttp.New(cfg.ShipWatch.ProviderBaseURL, cfg.ShipWatch.ProviderAPIKey, limiter)
	}
	return fake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipments.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.api, a.consumer, a.feed)
}
