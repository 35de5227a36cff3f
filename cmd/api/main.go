package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NewsHub/internal/api"
	"github.com/LJTian/NewsHub/internal/app"
	"github.com/LJTian/NewsHub/internal/config"
	"github.com/LJTian/NewsHub/internal/logger"
	"github.com/LJTian/NewsHub/internal/scheduler"
)

const shutdownGrace = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		return 1
	}

	s, err := scheduler.New(cfg.CronSpec, a.Orch, a.Providers, cfg.TopicIDs, log)
	if err != nil {
		log.Error("init scheduler failed", "error", err)
		_ = a.Close()
		return 1
	}
	s.Start()

	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	r := api.NewEngine(log, cfg.BasicAuthUser, cfg.BasicAuthPass)
	api.NewServer(a.Store, a.Orch, a.Providers, log).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting api server", "addr", srv.Addr, "providers", len(a.Providers), "cron", cfg.CronSpec)
	err = api.Serve(ctx, srv, shutdownGrace, log,
		// 先停调度并等待进行中的采集，再释放数据库与 Redis 连接
		func(ctx context.Context) error {
			select {
			case <-s.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		func(context.Context) error { return a.Close() },
	)
	if err != nil {
		log.Error("server exit", "error", err)
		return 1
	}
	log.Info("stopped")
	return 0
}
