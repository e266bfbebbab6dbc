package main

import (
	"fmt"

	"github.com/evalboard/evalboard/pkg/config"
	"github.com/evalboard/evalboard/pkg/coordinator"
	"github.com/evalboard/evalboard/pkg/fetcher"
	"github.com/evalboard/evalboard/pkg/history"
	"github.com/evalboard/evalboard/pkg/logger"
	"github.com/evalboard/evalboard/pkg/reportcache"
	"github.com/evalboard/evalboard/pkg/storage"
	"github.com/evalboard/evalboard/pkg/storage/redis"
	"github.com/evalboard/evalboard/pkg/storage/sqlite"
)

// app bundles the components every command needs.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	backend storage.Backend
	store   *reportcache.Store
	history *history.Log
	coord   *coordinator.Coordinator
	fetcher *fetcher.Client
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, backend: backend}
	a.store = reportcache.New(backend,
		reportcache.WithCapacity(cfg.Store.Capacity),
		reportcache.WithKey(cfg.Store.Key),
		reportcache.WithLogger(log.WithStore(cfg.Store.Backend)),
	)

	opts := []coordinator.Option{coordinator.WithLogger(log)}
	if cfg.History.Enabled {
		h, err := history.New(cfg.History)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("init fetch history: %w", err)
		}
		a.history = h
		opts = append(opts, coordinator.WithRecorder(h))
	}
	a.coord = coordinator.New(a.store, opts...)

	a.fetcher, err = fetcher.New(fetcher.Options{
		BaseURL:           cfg.Fetcher.BaseURL,
		Path:              cfg.Fetcher.Path,
		Timeout:           cfg.Fetcher.Timeout,
		RequestsPerSecond: cfg.Fetcher.RateLimit,
		Burst:             cfg.Fetcher.Burst,
		MinTotalQuestions: cfg.Fetcher.MinTotalQuestions,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	return a, nil
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Store.Backend {
	case "redis":
		kv, err := redis.New(cfg.Store.RedisURL, "evalboard:")
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		return kv, nil
	case "memory":
		return storage.NewMemory(), nil
	default:
		kv, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return kv, nil
	}
}

// Close shuts the coordinator down and releases storage.
func (a *app) Close() {
	a.coord.Close()
	if a.history != nil {
		_ = a.history.Close()
	}
	_ = a.backend.Close()
}
