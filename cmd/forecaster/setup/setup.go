// Package setup assembles the runtime graph shared by the API server and the
// trainer: database pool, archive repository, history source, artifact store
// and forecast service.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/Phantawat/BreatheEasy/cmd/forecaster/config"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/metrics"
	"github.com/Phantawat/BreatheEasy/cmd/forecaster/store"
	"github.com/Phantawat/BreatheEasy/pkg/adapters"
	"github.com/Phantawat/BreatheEasy/pkg/archive"
	"github.com/Phantawat/BreatheEasy/pkg/cache"
	"github.com/Phantawat/BreatheEasy/pkg/forecast"
	"github.com/Phantawat/BreatheEasy/pkg/httpx"
	"github.com/Phantawat/BreatheEasy/pkg/storage"
	"github.com/Phantawat/BreatheEasy/pkg/tls"
)

// TracerName names the spans emitted by the forecast service.
const TracerName = "github.com/Phantawat/BreatheEasy/forecast"

// App is the assembled runtime. Close releases everything it opened.
type App struct {
	Pool     *pgxpool.Pool
	Archive  *archive.Repository
	Source   adapters.Source
	Cache    *cache.Cache
	Store    store.Store
	Service  *forecast.Service
	Variants []forecast.Variant

	closers []func()
}

// Close releases the store and the database pool.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Ping checks the database when one is configured.
func (a *App) Ping(ctx context.Context) error {
	if a.Pool == nil {
		return nil
	}
	return a.Pool.Ping(ctx)
}

// Build connects to the configured backends and constructs the service.
// m may be nil.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		app.closers = append(app.closers, pool.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres health check: %w", err)
		}
		app.Pool = pool
		app.Archive = archive.NewRepository(pool)
		logger.Info("postgres connected")

		if cfg.Migrate {
			if err := app.Archive.Migrate(ctx); err != nil {
				return nil, err
			}
			logger.Info("archive schema migrated")
		}
	}

	src, err := newSource(cfg, app.Pool)
	if err != nil {
		return nil, err
	}
	if cfg.CacheTTL > 0 {
		c, err := cache.New(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		app.Cache = c
		cached := &adapters.Cached{Source: src, Cache: c}
		if m != nil {
			cached.Observe = m.ObserveCache
		}
		src = cached
	}
	app.Source = src
	logger.Info("history source ready", "source", src.Name(), "cache_ttl", cfg.CacheTTL)

	artifacts, err := store.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Store = artifacts
	app.closers = append(app.closers, func() {
		if err := artifacts.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	})

	engine, err := forecast.NewEngine(time.Hour)
	if err != nil {
		return nil, err
	}

	app.Variants = Variants(cfg, artifacts)
	opts := []forecast.Option{
		forecast.WithLogger(logger),
		forecast.WithTracer(otel.Tracer(TracerName)),
	}
	if m != nil {
		opts = append(opts, forecast.WithRecorder(m))
	}
	svc, err := forecast.NewService(src, engine, app.Variants, opts...)
	if err != nil {
		return nil, err
	}
	app.Service = svc

	ok = true
	return app, nil
}

func newSource(cfg *config.Config, pool *pgxpool.Pool) (adapters.Source, error) {
	var db adapters.Querier
	if pool != nil {
		db = pool
	}
	if cfg.Source == "postgres" && db == nil {
		return nil, errors.New("source=postgres requires database-url")
	}

	src, err := adapters.New(cfg.Source, cfg.SourceConfig, db)
	if err != nil {
		return nil, err
	}

	if hs, ok := src.(*adapters.HTTPSource); ok && cfg.SourceCAFile != "" {
		client, err := httpx.NewClient(tls.Config{Enabled: true, CAFile: cfg.SourceCAFile}, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("http source client: %w", err)
		}
		hs.HTTPClient = client
	}
	return src, nil
}

// Variants returns the default catalog with the configured provider
// strategy applied to every recursive variant.
func Variants(cfg *config.Config, artifacts storage.Store) []forecast.Variant {
	opts := forecast.DefaultCatalogOptions()
	opts.Lags = cfg.Lags
	opts.SequenceEndpoint = cfg.SequenceEndpoint
	opts.SequencePath = cfg.SequencePath

	catalog := forecast.Catalog(opts)
	for i, v := range catalog {
		if cfg.Provider == config.ProviderArtifact {
			catalog[i] = v.FromArtifacts(artifacts, cfg.ArtifactIDs[v.Name])
		} else {
			catalog[i] = v.TrainOnDemand()
		}
	}
	return catalog
}
