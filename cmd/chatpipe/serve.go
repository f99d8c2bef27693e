package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chatpipeai/chatpipe/internal/aggregate"
	"github.com/chatpipeai/chatpipe/internal/channel"
	"github.com/chatpipeai/chatpipe/internal/clock"
	"github.com/chatpipeai/chatpipe/internal/config"
	"github.com/chatpipeai/chatpipe/internal/dedup"
	"github.com/chatpipeai/chatpipe/internal/delivery"
	"github.com/chatpipeai/chatpipe/internal/handlers"
	"github.com/chatpipeai/chatpipe/internal/healthcheck"
	"github.com/chatpipeai/chatpipe/internal/history"
	"github.com/chatpipeai/chatpipe/internal/logger"
	"github.com/chatpipeai/chatpipe/internal/notify"
	"github.com/chatpipeai/chatpipe/internal/pipeline"
	"github.com/chatpipeai/chatpipe/internal/processing"
	"github.com/chatpipeai/chatpipe/internal/responder"
	"github.com/chatpipeai/chatpipe/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideClock,
			provideDBPool,
			provideHistoryStore,
			provideHistoryWriter,
			provideChannelClient,
			provideResponder,
			provideStores,
			provideDeliverer,
			providePipeline,
			provideSweeper,
			notifyHub,
			handlers.NewPingHandler,
			handlers.NewAuthHandler,
			handlers.NewWebhookHandler,
			handlers.NewMessageHandler,
			handlers.NewEventsHandler,
			handlers.NewHealthHandler,
			provideHealthRegistry,
			provideServer,
		),
		fx.Invoke(
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideClock() clock.Clock {
	return clock.New()
}

func notifyHub(log *slog.Logger) *notify.Hub {
	return notify.NewHub(log)
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if !cfg.Postgres.Enabled {
		return nil, nil
	}
	pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideHistoryStore(lc fx.Lifecycle, log *slog.Logger, pool *pgxpool.Pool) *history.Store {
	if pool == nil {
		return nil
	}
	store := history.NewStore(log, pool)
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error { return store.EnsureSchema(ctx) }})
	return store
}

func provideHistoryWriter(store *history.Store) history.Writer {
	if store == nil {
		return history.Noop{}
	}
	return store
}

func provideChannelClient(log *slog.Logger, cfg config.Config) channel.Client {
	timeout := time.Duration(cfg.Channel.TimeoutSeconds) * time.Second
	return channel.NewHTTPClient(log, cfg.Channel.APIBaseURL, cfg.Channel.AccessToken, timeout)
}

func provideResponder(log *slog.Logger, cfg config.Config) responder.Responder {
	timeout := time.Duration(cfg.Responder.TimeoutSeconds) * time.Second
	return responder.NewHTTPResponder(log, cfg.Responder.BaseURL, cfg.Responder.APIKey, cfg.Responder.Model, timeout)
}

// pipelineStores bundles the TTL stores shared across delivery and processing.
type pipelineStores struct {
	fx.Out

	SendCache *dedup.Store `name:"send_cache"`
	Completed *dedup.Store `name:"completed"`
	Locks     *dedup.LockSet
}

func provideStores(c clock.Clock, cfg config.Config) pipelineStores {
	p := cfg.Pipeline
	return pipelineStores{
		SendCache: dedup.NewStore(c, p.SendCacheTTL.Std(), 8192),
		Completed: dedup.NewStore(c, p.DedupTTL.Std(), 8192),
		Locks:     dedup.NewLockSet(c, p.LockTTL.Std()),
	}
}

type delivererParams struct {
	fx.In

	Log       *slog.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Client    channel.Client
	SendCache *dedup.Store `name:"send_cache"`
	Locks     *dedup.LockSet
	History   history.Writer
	Hub       *notify.Hub
}

func provideDeliverer(p delivererParams) *delivery.Deliverer {
	pc := p.Cfg.Pipeline
	return delivery.NewDeliverer(p.Log, p.Clock, delivery.Config{
		MaxLength:   pc.MaxSegmentLength,
		SplitWindow: pc.SplitWindow,
		MaxRetries:  pc.DeliveryRetries,
		RetryDelay:  pc.DeliveryRetryDelay.Std(),
		BatchSize:   pc.BroadcastBatchSize,
		BatchDelay:  pc.BroadcastDelay.Std(),
	}, p.Client, p.SendCache, p.Locks, p.History, p.Hub)
}

type pipelineParams struct {
	fx.In

	Log       *slog.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Completed *dedup.Store `name:"completed"`
	Deliverer *delivery.Deliverer
	Responder responder.Responder
	History   history.Writer
	Hub       *notify.Hub
}

func providePipeline(p pipelineParams) *pipeline.Pipeline {
	pc := p.Cfg.Pipeline
	return pipeline.New(p.Log, p.Clock, pipeline.Options{
		Aggregator: aggregate.AggregatorConfig{
			FlushDelay:   pc.AggregationDelay.Std(),
			MaxBufferAge: pc.MaxAggregationTime.Std(),
		},
		Correlator: aggregate.CorrelatorConfig{
			FlushWindow: pc.ImageFlushWindow.Std(),
			TextRecency: pc.ImageTextRecency.Std(),
		},
		Processing: processing.Config{
			Timeout:    pc.ProcessingTimeout.Std(),
			RetryDelay: pc.ProcessingBackoff.Std(),
			MaxRetries: pc.ProcessingRetries,
			DedupTTL:   pc.DedupTTL.Std(),
		},
		Apology: p.Cfg.Responder.Apology,
	}, p.Completed, p.Deliverer, p.Responder, p.History, p.Hub)
}

type sweeperParams struct {
	fx.In

	Log       *slog.Logger
	Cfg       config.Config
	SendCache *dedup.Store `name:"send_cache"`
	Completed *dedup.Store `name:"completed"`
	Locks     *dedup.LockSet
}

func provideSweeper(p sweeperParams) *dedup.Sweeper {
	sweeper := dedup.NewSweeper(p.Log, p.Cfg.Pipeline.SweepInterval.Std())
	sweeper.Register("send_cache", p.SendCache)
	sweeper.Register("completed", p.Completed)
	sweeper.Register("locks", p.Locks)
	return sweeper
}

func startSweeper(lc fx.Lifecycle, sweeper *dedup.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sweeper.Start() },
		OnStop:  func(ctx context.Context) error { sweeper.Stop(); return nil },
	})
}

func provideHealthRegistry(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool) *healthcheck.Registry {
	registry := healthcheck.NewRegistry(log, 5*time.Second)
	registry.Register(healthcheck.NewHTTPChecker("channel_api", cfg.Channel.APIBaseURL))
	registry.Register(healthcheck.NewHTTPChecker("responder", cfg.Responder.BaseURL))
	if pool != nil {
		registry.Register(healthcheck.NewPostgresChecker(pool))
	}
	return registry
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, webhookHandler *handlers.WebhookHandler, messageHandler *handlers.MessageHandler, eventsHandler *handlers.EventsHandler, healthHandler *handlers.HealthHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret, []server.Handler{
		pingHandler,
		authHandler,
		webhookHandler,
		messageHandler,
		eventsHandler,
		healthHandler,
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
