package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/IndustriasCannon/shipwatch/config"
	"github.com/IndustriasCannon/shipwatch/internal/ratelimit"
	"github.com/IndustriasCannon/shipwatch/internal/services/scheduler"
	"github.com/go-chi/chi/v5"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	scheduler *scheduler.Scheduler
	limiter   *ratelimit.Limiter
	cfg       *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.scheduler == nil {
			_, _ = w.Write([]byte(`{"error":"scheduler not wired"}`))
			return
		}
		out := map[string]any{"scheduler": opts.scheduler.Stats()}
		if opts.limiter != nil {
			out["providerRateLimit"] = opts.limiter.Usage()
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Секреты наружу не отдаём, только операционные настройки.
		out := map[string]any{
			"providerMode":               opts.cfg.ShipWatch.ProviderMode,
			"providerRateLimitPerMinute": opts.cfg.ShipWatch.ProviderRateLimitPerMinute,
			"syncIntervalSeconds":        opts.cfg.ShipWatch.SyncIntervalSeconds,
			"positionsIntervalSeconds":   opts.cfg.ShipWatch.PositionsIntervalSeconds,
			"syncBatchSize":              opts.cfg.ShipWatch.SyncBatchSize,
			"syncShipmentLimit":          opts.cfg.ShipWatch.SyncShipmentLimit,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.scheduler == nil {
			_, _ = w.Write([]byte(`{"error":"scheduler not wired"}`))
			return
		}
		opts.scheduler.TriggerSync()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	r.Post("/trigger/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.scheduler == nil {
			_, _ = w.Write([]byte(`{"error":"scheduler not wired"}`))
			return
		}
		opts.scheduler.TriggerPositions()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
