package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/NewsHub/internal/collector"
)

// cronLogger 把 cron 的日志接到 slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// Scheduler 按 cron 表达式定期执行主题抓取
type Scheduler struct {
	cron      *cron.Cron
	orch      *Orchestrator
	providers []collector.Provider
	topicIDs  []uint
	logger    *slog.Logger

	// StartupDelay 启动后延迟执行首轮抓取，0 表示不执行首轮
	StartupDelay time.Duration

	mu      sync.Mutex
	running bool
}

func New(spec string, orch *Orchestrator, providers []collector.Provider, topicIDs []uint, logger *slog.Logger) (*Scheduler, error) {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	s := &Scheduler{
		cron:         c,
		orch:         orch,
		providers:    providers,
		topicIDs:     topicIDs,
		logger:       logger,
		StartupDelay: 15 * time.Second,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.StartupDelay > 0 {
		time.AfterFunc(s.StartupDelay, func() {
			s.RunOnce(context.Background())
		})
	}
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce 对外暴露的单次执行入口；上一轮未结束时直接跳过，返回 nil
func (s *Scheduler) RunOnce(ctx context.Context) *Report {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous collect job still running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("start collect job")
	rep, err := s.orch.RunTopics(ctx, s.providers, s.topicIDs)
	if err != nil {
		s.logger.Error("collect job failed", "error", err)
		return nil
	}
	s.logger.Info("collect job done", "run_id", rep.RunID, "failed", len(rep.Errors))
	return rep
}
