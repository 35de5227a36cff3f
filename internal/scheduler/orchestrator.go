package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/processor"
	"github.com/LJTian/NewsHub/internal/storage"
)

var (
	ErrQuotaExceeded = errors.New("daily quota exhausted")
	ErrNoAdapter     = errors.New("no adapter configured")
)

type ArticleWriter interface {
	Insert(ctx context.Context, table string, articles []processor.Article) (storage.WriteResult, error)
}

type QuotaChecker interface {
	Allow(ctx context.Context, p collector.Provider) (bool, error)
}

type TopicSource interface {
	ListActiveTopics(ctx context.Context, ids ...uint) ([]collector.Topic, error)
}

type Archiver interface {
	ArchiveAll(payloads map[string]json.RawMessage, ts time.Time) (map[string]string, error)
}

// Deps 编排器的依赖；Quota / Topics / Archive 可以为空
type Deps struct {
	Adapters map[collector.Provider]collector.Adapter
	Writer   ArticleWriter
	Quota    QuotaChecker
	Topics   TopicSource
	Archive  Archiver
	// Timeout 单个数据源一次查询的截止时间，包含重试
	Timeout time.Duration
	Logger  *slog.Logger
}

type Orchestrator struct {
	adapters map[collector.Provider]collector.Adapter
	writer   ArticleWriter
	quota    QuotaChecker
	topics   TopicSource
	archive  Archiver
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{
		adapters: d.Adapters,
		writer:   d.Writer,
		quota:    d.Quota,
		topics:   d.Topics,
		archive:  d.Archive,
		timeout:  d.Timeout,
		logger:   d.Logger.With("component", "orchestrator"),
		now:      time.Now,
	}
}

// ProviderStats 单个数据源本次运行的统计
type ProviderStats struct {
	Queries  int    `json:"queries"`
	Failed   int    `json:"failed"`
	Produced int    `json:"produced"`
	Skipped  int    `json:"skipped"`
	Warnings int    `json:"warnings"`
	Inserted int    `json:"inserted"`
	Existing int    `json:"existing"`
	Raced    int    `json:"raced"`
	StoreErr string `json:"storeError,omitempty"`
}

// Report 每个请求的数据源都有一项结果，失败的数据源结果为 null
type Report struct {
	RunID        string                                 `json:"runId"`
	StartedAt    time.Time                              `json:"startedAt"`
	FinishedAt   time.Time                              `json:"finishedAt"`
	Results      map[collector.Provider]json.RawMessage `json:"results"`
	Errors       map[collector.Provider]string          `json:"errors,omitempty"`
	Stats        map[collector.Provider]*ProviderStats  `json:"stats"`
	ArchivePaths map[string]string                      `json:"archivePaths,omitempty"`
}

func (o *Orchestrator) newReport(providers []collector.Provider) *Report {
	r := &Report{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
		Results:   make(map[collector.Provider]json.RawMessage, len(providers)),
		Errors:    make(map[collector.Provider]string),
		Stats:     make(map[collector.Provider]*ProviderStats, len(providers)),
	}
	for _, p := range providers {
		r.Results[p] = nil
		r.Stats[p] = &ProviderStats{}
	}
	return r
}

// Validate 只做参数校验，不发起网络请求
func (o *Orchestrator) Validate(providers []collector.Provider, specs map[collector.Provider]collector.QuerySpec) error {
	var errs []error
	for _, p := range providers {
		a, ok := o.adapters[p]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", p, ErrNoAdapter))
			continue
		}
		if _, err := a.Params(specs[p]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run 每个数据源一个任务并发执行；单个数据源失败只影响自己的结果
func (o *Orchestrator) Run(ctx context.Context, providers []collector.Provider, specs map[collector.Provider]collector.QuerySpec) *Report {
	rep := o.newReport(providers)
	log := o.logger.With("run_id", rep.RunID)
	log.Info("run started", "providers", len(providers))

	o.fanOut(providers, rep, func(p collector.Provider, stats *ProviderStats) (json.RawMessage, error) {
		return o.query(ctx, log, p, specs[p], stats)
	})

	o.finish(log, rep)
	return rep
}

// RunTopics 把兴趣主题展开到各数据源，结果为 {数据源: {主题ID: 响应}}
func (o *Orchestrator) RunTopics(ctx context.Context, providers []collector.Provider, topicIDs []uint) (*Report, error) {
	if o.topics == nil {
		return nil, errors.New("no topic source configured")
	}
	topics, err := o.topics.ListActiveTopics(ctx, topicIDs...)
	if err != nil {
		return nil, fmt.Errorf("list active topics: %w", err)
	}

	rep := o.newReport(providers)
	log := o.logger.With("run_id", rep.RunID)
	log.Info("topic run started", "providers", len(providers), "topics", len(topics))

	o.fanOut(providers, rep, func(p collector.Provider, stats *ProviderStats) (json.RawMessage, error) {
		a, ok := o.adapters[p]
		if !ok {
			return nil, ErrNoAdapter
		}
		byTopic := make(map[string]json.RawMessage, len(topics))
		var errs []error
		for _, t := range topics {
			spec := a.TopicQuery(t, o.now())
			payload, err := o.query(ctx, log, p, spec, stats)
			if err != nil {
				errs = append(errs, fmt.Errorf("topic %d: %w", t.ID, err))
			}
			byTopic[strconv.FormatUint(uint64(t.ID), 10)] = payload
		}
		if len(topics) > 0 && len(errs) == len(topics) {
			return nil, errors.Join(errs...)
		}
		bs, err := json.Marshal(byTopic)
		if err != nil {
			return nil, err
		}
		for _, e := range errs {
			log.Warn("topic query failed", "provider", p.String(), "error", e)
		}
		return bs, nil
	})

	o.finish(log, rep)
	return rep, nil
}

type providerTask func(p collector.Provider, stats *ProviderStats) (json.RawMessage, error)

func (o *Orchestrator) fanOut(providers []collector.Provider, rep *Report, task providerTask) {
	if len(providers) == 0 {
		return
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(len(providers))
	for _, p := range providers {
		p := p
		stats := rep.Stats[p]
		g.Go(func() error {
			payload, err := safeRun(task, p, stats)
			mu.Lock()
			defer mu.Unlock()
			rep.Results[p] = payload
			if err != nil {
				rep.Errors[p] = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// safeRun 数据源任务中的 panic 只记为该数据源失败
func safeRun(task providerTask, p collector.Provider, stats *ProviderStats) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return task(p, stats)
}

// query 查询一次并入库；入库失败不影响返回的原始响应
func (o *Orchestrator) query(ctx context.Context, log *slog.Logger, p collector.Provider, spec collector.QuerySpec, stats *ProviderStats) (json.RawMessage, error) {
	stats.Queries++
	a, ok := o.adapters[p]
	if !ok {
		stats.Failed++
		return nil, ErrNoAdapter
	}

	if o.quota != nil {
		allowed, err := o.quota.Allow(ctx, p)
		if err != nil {
			log.Warn("quota check failed, continuing", "provider", p.String(), "error", err)
		} else if !allowed {
			stats.Failed++
			return nil, ErrQuotaExceeded
		}
	}

	fctx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	raw, err := a.Fetch(fctx, spec)
	if err != nil {
		stats.Failed++
		log.Error("fetch failed", "provider", p.String(), "error", err)
		return nil, err
	}

	o.store(ctx, log, p, spec.Interest, raw.Body, stats)
	return raw.Body, nil
}

func (o *Orchestrator) store(ctx context.Context, log *slog.Logger, p collector.Provider, interest string, body []byte, stats *ProviderStats) {
	batch, err := processor.Normalize(p, body)
	if err != nil {
		stats.StoreErr = err.Error()
		log.Error("normalize failed", "provider", p.String(), "error", err)
		return
	}
	stats.Produced += batch.Produced()
	stats.Skipped += batch.SkippedCount()
	stats.Warnings += len(batch.Warnings)
	for _, s := range batch.Skipped {
		log.Warn("record skipped", "provider", p.String(), "index", s.Index, "reason", s.Reason)
	}
	for _, w := range batch.Warnings {
		log.Warn("record warning", "provider", p.String(), "warning", w)
	}
	if batch.Produced() == 0 || o.writer == nil {
		return
	}

	for i := range batch.Articles {
		batch.Articles[i].Interest = interest
	}
	res, err := o.writer.Insert(ctx, p.Table(), batch.Articles)
	stats.Existing += res.Existing + res.InBatch
	stats.Raced += res.Raced
	if err != nil {
		stats.StoreErr = err.Error()
		log.Error("store batch failed", "provider", p.String(), "error", err)
		return
	}
	stats.Inserted += res.Inserted
}

func (o *Orchestrator) finish(log *slog.Logger, rep *Report) {
	rep.FinishedAt = o.now().UTC()
	if o.archive != nil && len(rep.Results) > 0 {
		payloads := make(map[string]json.RawMessage, len(rep.Results))
		for p, body := range rep.Results {
			payloads[p.String()] = body
		}
		paths, err := o.archive.ArchiveAll(payloads, rep.FinishedAt)
		if err != nil {
			log.Error("archive failed", "error", err)
		}
		rep.ArchivePaths = paths
	}
	log.Info("run finished", "providers", len(rep.Results), "failed", len(rep.Errors),
		"duration", rep.FinishedAt.Sub(rep.StartedAt).String())
}

// Ingest 对已有的原始响应做归一化并入库，用于回放归档
func (o *Orchestrator) Ingest(ctx context.Context, p collector.Provider, body []byte) ProviderStats {
	var stats ProviderStats
	o.store(ctx, o.logger, p, "", body, &stats)
	return stats
}
