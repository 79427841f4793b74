package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/IndustriasCannon/shipwatch/config"
	"github.com/IndustriasCannon/shipwatch/internal/cache"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider/fake"
	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider/shipsgohttp"
	"github.com/IndustriasCannon/shipwatch/internal/models"
	"github.com/IndustriasCannon/shipwatch/internal/ratelimit"
	"github.com/IndustriasCannon/shipwatch/internal/services/scheduler"
	"github.com/IndustriasCannon/shipwatch/internal/services/syncer"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (fakeRepo) ShipmentsByStatus(_ context.Context, _ string, _ int) ([]*models.Shipment, error) {
	return nil, nil
}
func (fakeRepo) ShipmentByID(_ context.Context, _ uint64) (*models.Shipment, error) {
	return nil, nil
}
func (fakeRepo) SearchShipments(_ context.Context, _ string) ([]*models.Shipment, error) {
	return nil, nil
}
func (fakeRepo) UpdateShipment(_ context.Context, _ uint64, _ models.ShipmentUpdate) (*models.Shipment, error) {
	return nil, nil
}
func (fakeRepo) CreateAlert(_ context.Context, _ models.AlertInput) (*models.Alert, error) {
	return nil, nil
}
func (fakeRepo) VesselsWithIMO(_ context.Context) ([]*models.Vessel, error) { return nil, nil }
func (fakeRepo) UpdateVesselPosition(_ context.Context, _ uint64, _ models.VesselPositionUpdate, _ time.Time) error {
	return nil
}

type noopProducer struct{}

func (noopProducer) Publish(_ context.Context, _ string, _, _ []byte) error { return nil }

type noopCache struct{}

func (noopCache) Get(_ context.Context, _ string) ([]byte, bool, error) { return nil, false, nil }
func (noopCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func TestDefaultWorkerFactories_SelectProviderClient(t *testing.T) {
	f := defaultWorkerFactories()
	limiter := ratelimit.New(100, time.Minute)

	cfgReal := &config.Config{ShipWatch: config.ShipWatchConfig{
		ProviderMode: "shipsgo", ProviderAPIKey: "k", ProviderBaseURL: "http://localhost:9000",
	}}
	c1 := f.newProviderClient(cfgReal, limiter)
	_, ok := c1.(*shipsgohttp.Client)
	require.True(t, ok)

	// Без ключа — fake, даже если режим shipsgo.
	cfgNoKey := &config.Config{ShipWatch: config.ShipWatchConfig{ProviderMode: "shipsgo"}}
	c2 := f.newProviderClient(cfgNoKey, limiter)
	_, ok = c2.(*fake.FakeClient)
	require.True(t, ok)

	cfgFake := &config.Config{ShipWatch: config.ShipWatchConfig{ProviderMode: "fake"}}
	c3 := f.newProviderClient(cfgFake, limiter)
	_, ok = c3.(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ProducerAndCache_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newCache(cfg))
}

func TestRunShipWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (syncer.Repository, func(), error) {
			return fakeRepo{}, func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) syncer.Producer { return noopProducer{} },
		newCache:    func(cfg *config.Config) cache.BytesCache { return noopCache{} },
		newProviderClient: func(cfg *config.Config, _ *ratelimit.Limiter) provider.Client {
			return fake.New()
		},
	}

	cfg := &config.Config{
		ShipWatch: config.ShipWatchConfig{WorkerHTTPAddr: "127.0.0.1:0"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunShipWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestRunWorkerHTTPServer_Endpoints(t *testing.T) {
	sched := scheduler.New(syncer.New(fakeRepo{}, fake.New(), nil, "", ""))
	limiter := ratelimit.New(100, time.Minute)
	cfg := &config.Config{ShipWatch: config.ShipWatchConfig{ProviderMode: "fake", SyncBatchSize: 50}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:  "127.0.0.1:0",
			onListen:  func(addr string) { addrCh <- addr },
			scheduler: sched,
			limiter:   limiter,
			cfg:       cfg,
		})
	}()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Contains(t, stats, "scheduler")
	require.Contains(t, stats, "providerRateLimit")

	resp, err = http.Get("http://" + addr + "/config")
	require.NoError(t, err)
	var cfgOut map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfgOut))
	resp.Body.Close()
	require.Equal(t, "fake", cfgOut["providerMode"])

	resp, err = http.Post("http://"+addr+"/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Post("http://"+addr+"/trigger/positions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	cancel()
	require.Error(t, <-errCh)
}
