// Package app 把配置、存储与各数据源 Adapter 组装成可运行的编排器，供 cmd 下的入口共用。
package app

import (
	"fmt"
	"log/slog"

	"github.com/LJTian/NewsHub/internal/archive"
	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/config"
	"github.com/LJTian/NewsHub/internal/scheduler"
	"github.com/LJTian/NewsHub/internal/storage"
)

type App struct {
	Store     *storage.Store
	Orch      *scheduler.Orchestrator
	Archive   *archive.Sink
	Providers []collector.Provider
}

// EnabledProviders 解析配置中的数据源，为空表示全部
func EnabledProviders(cfg *config.Config) ([]collector.Provider, error) {
	providers, err := collector.ParseProviders(cfg.EnabledProviders)
	if err != nil {
		return nil, fmt.Errorf("ENABLED_PROVIDERS: %w", err)
	}
	if len(providers) == 0 {
		providers = collector.All()
	}
	return providers, nil
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	providers, err := EnabledProviders(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	rc := collector.DefaultRetryConfig()
	rc.MaxAttempts = cfg.FetchMaxAttempts
	rc.BaseDelay = cfg.FetchBaseDelay
	client := collector.NewRetryClient(rc, store, store, log)

	sink := archive.NewSink(cfg.ArchiveDir)
	orch := scheduler.NewOrchestrator(scheduler.Deps{
		Adapters: collector.NewAdapters(cfg.APIKeys, cfg.PaidNewsData(), client),
		Writer:   storage.NewWriter(store, store.Queue(), log),
		Quota:    store,
		Topics:   store,
		Archive:  sink,
		Timeout:  cfg.FetchTimeout,
		Logger:   log,
	})

	return &App{Store: store, Orch: orch, Archive: sink, Providers: providers}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
