package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/citesearch/config"
	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/mohammad-safakhou/citesearch/internal/events/redisrelay"
	"github.com/mohammad-safakhou/citesearch/internal/logging"
	"github.com/mohammad-safakhou/citesearch/internal/pipeline"
	"github.com/mohammad-safakhou/citesearch/internal/runtime"
	"github.com/mohammad-safakhou/citesearch/provider"
	"github.com/mohammad-safakhou/citesearch/tools/web_search"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired components shared by serve and ask.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *runtime.Telemetry
	hub       *events.Hub
	pipeline  *pipeline.Pipeline
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a := &app{cfg: cfg, logger: logger}

	a.telemetry, err = runtime.SetupTelemetry(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	gen, err := provider.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	searcher, err := web_search.NewSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}

	a.hub = events.NewHub(events.HubOptions{
		Keepalive: cfg.Pipeline.KeepaliveInterval,
		Buffer:    cfg.Pipeline.SubscriberBuffer,
		OrphanTTL: cfg.Pipeline.OrphanTTL,
		Logger:    logger.Named("events"),
	})
	go a.hub.Run(ctx)

	var publisher events.Publisher = a.hub
	if cfg.Events.Backend == "redis" {
		relay, err := a.startRelay(ctx)
		if err != nil {
			return nil, err
		}
		publisher = relay
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		Generator: gen,
		Searcher:  searcher,
		Publisher: publisher,
		Sessions:  a.hub,
		Logger:    logger,
	}, pipeline.OptionsFromConfig(cfg))
	return a, nil
}

// startRelay connects to redis and fans events out through it so any
// instance holding the subscriber can deliver them.
func (a *app) startRelay(ctx context.Context) (*redisrelay.Relay, error) {
	rc := a.cfg.Storage.Redis
	client := redis.NewClient(&redis.Options{
		Addr:        rc.Addr(),
		Password:    rc.Password,
		DB:          rc.DB,
		DialTimeout: rc.Timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, rc.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed (%s): %w", rc.Addr(), err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	relay := redisrelay.New(client, a.hub, a.cfg.Events.ChannelPrefix, a.logger.Named("events.redis"))
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("event relay stopped", zap.Error(err))
		}
	}()
	select {
	case <-relay.Ready():
	case <-pingCtx.Done():
		return nil, fmt.Errorf("event relay did not subscribe: %w", pingCtx.Err())
	}
	return relay, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}
