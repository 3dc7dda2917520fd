package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
	"curvehub/internal/application/usecase/curve"
	"curvehub/internal/application/usecase/relay"
	"curvehub/internal/infrastructure/config"
	"curvehub/internal/infrastructure/exchange/binance"
	"curvehub/internal/infrastructure/logger"
	"curvehub/internal/infrastructure/metrics"
	"curvehub/internal/infrastructure/storage/composite"
	"curvehub/internal/infrastructure/storage/postgres"
	"curvehub/internal/infrastructure/storage/redis"
	"curvehub/internal/infrastructure/storage/sqlite"
	"curvehub/internal/infrastructure/upstream/v4"
	"curvehub/internal/infrastructure/upstream/v5"
	"curvehub/internal/interfaces/web"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("accuracy store init failed")
	}
	defer store.Close()

	var cache port.CurveCache
	if cfg.Redis.Enabled {
		rc, err := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.Prefix, time.Duration(cfg.Redis.TTLMin)*time.Minute)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis init failed")
		}
		defer rc.Close()
		cache = rc
	}

	recorder := metrics.New()
	hub := web.NewHub(recorder)

	// pollers (infrastructure -> application ports)
	var (
		pollers     []*curve.Service
		queries     []web.CurveQuery
		passthrough web.Passthrough
	)
	interval := time.Duration(cfg.Poller.IntervalMin) * time.Minute
	fallback := time.Duration(cfg.Poller.FallbackSec) * time.Second

	if cfg.Upstream.V4.Enabled {
		src := v4.New(cfg.Upstream.V4.BaseURL, time.Duration(cfg.Upstream.V4.TimeoutSec)*time.Second)
		svc := curve.NewService(curve.Deps{
			Source:        src,
			Store:         store,
			Publisher:     hub,
			Cache:         cache,
			Metrics:       recorder,
			Interval:      interval,
			AlignOffset:   time.Duration(cfg.Upstream.V4.AlignOffsetSec) * time.Second,
			FallbackSleep: fallback,
			HistorySize:   cfg.Poller.HistorySize,
		})
		pollers = append(pollers, svc)
		queries = append(queries, svc)
	}
	if cfg.Upstream.V5.Enabled {
		src := v5.New(cfg.Upstream.V5.BaseURL, time.Duration(cfg.Upstream.V5.TimeoutSec)*time.Second)
		svc := curve.NewService(curve.Deps{
			Source:        src,
			Store:         store,
			Publisher:     hub,
			Cache:         cache,
			Metrics:       recorder,
			Interval:      interval,
			AlignOffset:   time.Duration(cfg.Upstream.V5.AlignOffsetSec) * time.Second,
			FallbackSleep: fallback,
			HistorySize:   cfg.Poller.HistorySize,
		})
		pollers = append(pollers, svc)
		queries = append(queries, svc)
		passthrough = src
	}

	server := web.NewServer(web.Config{
		Addr:        cfg.Server.Addr,
		StaticDir:   cfg.Server.StaticDir,
		SummaryDays: cfg.Poller.SummaryDays,
		Heartbeat:   time.Duration(cfg.Poller.HeartbeatSec) * time.Second,
	}, hub, queries, store, passthrough, binance.NewRestClient(cfg.Relay.RestURL))

	var wg sync.WaitGroup
	for _, p := range pollers {
		wg.Add(1)
		go func(p *curve.Service) {
			defer wg.Done()
			_ = p.Run(ctx)
		}(p)
	}

	if cfg.Relay.Enabled {
		feed := binance.NewTradeFeed(cfg.Relay.WsURL, cfg.Relay.Symbol)
		relaySvc := relay.NewService(feed, hub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relaySvc.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("tick relay exited")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.RunHeartbeat(ctx)
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("http server exited")
			stop()
		}
	}()

	log.Info().
		Str("config", *configPath).
		Str("addr", cfg.Server.Addr).
		Int("pollers", len(pollers)).
		Str("storage", cfg.Storage.Backend).
		Msg("curvehub started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	wg.Wait()
	log.Info().Msg("curvehub stopped")
}

func buildStore(cfg *config.Config) (port.AccuracyStore, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	case "composite":
		sq, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		pg, err := postgres.New(cfg.Storage.PostgresDSN)
		if err != nil {
			_ = sq.Close()
			return nil, err
		}
		return composite.New(sq, pg), nil
	default:
		return sqlite.New(cfg.Storage.SQLitePath)
	}
}
