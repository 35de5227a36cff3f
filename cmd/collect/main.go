package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/LJTian/NewsHub/internal/app"
	"github.com/LJTian/NewsHub/internal/archive"
	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/config"
	"github.com/LJTian/NewsHub/internal/logger"
	"github.com/LJTian/NewsHub/internal/scheduler"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集或回放归档
func main() {
	os.Exit(run())
}

// run 返回退出码：参数错误为 2，运行失败为 1
func run() int {
	var (
		providersFlag = flag.String("providers", "", "comma separated providers, default: ENABLED_PROVIDERS or all")
		topics        = flag.Bool("topics", false, "query every active interest instead of -q")
		topicIDs      = flag.String("topic-ids", "", "comma separated interest ids for -topics")
		q             = flag.String("q", "", "keywords")
		lang          = flag.String("lang", "", "language code")
		country       = flag.String("country", "", "country code")
		category      = flag.String("category", "", "comma separated categories")
		endpoint      = flag.String("endpoint", "latest", "newsdata endpoint: latest or archive")
		replay        = flag.String("replay", "", "re-ingest archived responses under this directory, no network")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("init failed", "error", err)
		return 1
	}
	defer a.Close()

	providers := a.Providers
	if *providersFlag != "" {
		providers, err = collector.ParseProviders(strings.Split(*providersFlag, ","))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	ctx := context.Background()
	switch {
	case *replay != "":
		return runReplay(ctx, a.Orch, *replay, providers, log)
	case *topics:
		ids, err := parseIDs(*topicIDs)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		rep, err := a.Orch.RunTopics(ctx, providers, ids)
		if err != nil {
			log.Error("topic run failed", "error", err)
			return 1
		}
		return printReport(rep)
	default:
		base := collector.QuerySpec{
			Keywords:   *q,
			Language:   *lang,
			Country:    *country,
			Categories: splitList(*category),
		}
		specs := make(map[collector.Provider]collector.QuerySpec, len(providers))
		for _, p := range providers {
			spec := base
			if p == collector.NewsData {
				spec.Extras = map[string]string{"endpoint": *endpoint}
			}
			specs[p] = spec
		}
		if err := a.Orch.Validate(providers, specs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return printReport(a.Orch.Run(ctx, providers, specs))
	}
}

// printReport 输出报告；全部数据源失败时返回非零退出码
func printReport(rep *scheduler.Report) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	_ = enc.Encode(struct {
		RunID        string                                          `json:"runId"`
		Errors       map[collector.Provider]string                   `json:"errors,omitempty"`
		Stats        map[collector.Provider]*scheduler.ProviderStats `json:"stats"`
		ArchivePaths map[string]string                               `json:"archivePaths,omitempty"`
	}{rep.RunID, rep.Errors, rep.Stats, rep.ArchivePaths})

	if len(rep.Results) > 0 && len(rep.Errors) == len(rep.Results) {
		return 1
	}
	return 0
}

func runReplay(ctx context.Context, orch *scheduler.Orchestrator, dir string, providers []collector.Provider, log *slog.Logger) int {
	entries, err := archive.ReadDir(dir)
	if err != nil {
		log.Error("read archive failed", "dir", dir, "error", err)
		return 1
	}

	wanted := make(map[collector.Provider]bool, len(providers))
	for _, p := range providers {
		wanted[p] = true
	}

	total := make(map[collector.Provider]*scheduler.ProviderStats)
	for _, e := range entries {
		p, err := collector.ParseProvider(e.Provider)
		if err != nil {
			log.Warn("skip archive of unknown provider", "path", e.Path)
			continue
		}
		if !wanted[p] {
			continue
		}
		bodies, err := e.Responses(p.ResultsKey())
		if err != nil {
			log.Warn("skip unreadable archive", "path", e.Path, "error", err)
			continue
		}
		if total[p] == nil {
			total[p] = &scheduler.ProviderStats{}
		}
		for _, body := range bodies {
			st := orch.Ingest(ctx, p, body)
			t := total[p]
			t.Queries++
			t.Produced += st.Produced
			t.Skipped += st.Skipped
			t.Warnings += st.Warnings
			t.Inserted += st.Inserted
			t.Existing += st.Existing
			t.Raced += st.Raced
			if st.StoreErr != "" {
				t.Failed++
				t.StoreErr = st.StoreErr
			}
		}
		log.Info("archive replayed", "path", e.Path, "responses", len(bodies))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	_ = enc.Encode(total)
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]uint, error) {
	var ids []uint
	for _, part := range splitList(s) {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid topic id %q", part)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}
