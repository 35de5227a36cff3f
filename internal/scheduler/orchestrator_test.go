package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
	"github.com/LJTian/NewsHub/internal/logger"
	"github.com/LJTian/NewsHub/internal/processor"
	"github.com/LJTian/NewsHub/internal/storage"
)

type fakeAdapter struct {
	p       collector.Provider
	body    string
	err     error
	panics  bool
	block   bool
	failFor map[string]bool // 按关键词失败
	invalid error
	fetches int32
}

func (f *fakeAdapter) Provider() collector.Provider { return f.p }

func (f *fakeAdapter) Params(collector.QuerySpec) (url.Values, error) {
	if f.invalid != nil {
		return nil, f.invalid
	}
	return url.Values{}, nil
}

func (f *fakeAdapter) Fetch(ctx context.Context, spec collector.QuerySpec) (*collector.RawResponse, error) {
	atomic.AddInt32(&f.fetches, 1)
	if f.invalid != nil {
		return nil, f.invalid
	}
	if f.panics {
		panic("adapter exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, &collector.FetchError{Provider: f.p, Attempts: 1, Err: ctx.Err()}
	}
	if f.err != nil || f.failFor[spec.Keywords] {
		return nil, &collector.FetchError{Provider: f.p, Attempts: 3, StatusCode: 500, Err: errors.New("boom")}
	}
	return &collector.RawResponse{Provider: f.p, StatusCode: 200, Body: json.RawMessage(f.body)}, nil
}

func (f *fakeAdapter) TopicQuery(t collector.Topic, _ time.Time) collector.QuerySpec {
	return collector.QuerySpec{Keywords: t.Keyword, Interest: t.Keyword}
}

type insertCall struct {
	table    string
	articles []processor.Article
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []insertCall
}

func (w *fakeWriter) Insert(_ context.Context, table string, articles []processor.Article) (storage.WriteResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, insertCall{table: table, articles: articles})
	return storage.WriteResult{Table: table, Candidates: len(articles), Inserted: len(articles)}, nil
}

type fakeArchive struct {
	payloads map[string]json.RawMessage
}

func (a *fakeArchive) ArchiveAll(payloads map[string]json.RawMessage, _ time.Time) (map[string]string, error) {
	a.payloads = payloads
	paths := make(map[string]string, len(payloads))
	for k := range payloads {
		paths[k] = "/tmp/" + k + ".json"
	}
	return paths, nil
}

type fakeTopics struct{ topics []collector.Topic }

func (f fakeTopics) ListActiveTopics(_ context.Context, ids ...uint) ([]collector.Topic, error) {
	if len(ids) == 0 {
		return f.topics, nil
	}
	var out []collector.Topic
	for _, t := range f.topics {
		for _, id := range ids {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

type denyQuota struct{ deny collector.Provider }

func (q denyQuota) Allow(_ context.Context, p collector.Provider) (bool, error) {
	return p != q.deny, nil
}

const (
	newsDataBody = `{"status":"success","results":[{"article_id":"n1","title":"one"},{"title":"no id"}]}`
	gnewsBody    = `{"totalArticles":1,"articles":[{"title":"g1","url":"https://g/1","source":{"name":"G"}}]}`
)

func TestRunPartialFailure(t *testing.T) {
	adapters := map[collector.Provider]collector.Adapter{
		collector.NewsData: &fakeAdapter{p: collector.NewsData, body: newsDataBody},
		collector.NewsAPI:  &fakeAdapter{p: collector.NewsAPI, err: errors.New("down")},
		collector.GNews:    &fakeAdapter{p: collector.GNews, body: gnewsBody},
	}
	w := &fakeWriter{}
	ar := &fakeArchive{}
	o := NewOrchestrator(Deps{Adapters: adapters, Writer: w, Archive: ar, Timeout: time.Second, Logger: logger.Discard()})

	providers := []collector.Provider{collector.NewsData, collector.NewsAPI, collector.GNews}
	specs := map[collector.Provider]collector.QuerySpec{
		collector.NewsData: {Keywords: "ai", Interest: "ai"},
		collector.NewsAPI:  {Keywords: "ai"},
		collector.GNews:    {Keywords: "ai"},
	}
	rep := o.Run(context.Background(), providers, specs)

	if rep.RunID == "" {
		t.Fatalf("run id missing")
	}
	if len(rep.Results) != 3 {
		t.Fatalf("results must be keyed by every provider: %v", rep.Results)
	}
	if rep.Results[collector.NewsData] == nil || rep.Results[collector.GNews] == nil {
		t.Fatalf("successful providers must have payloads")
	}
	if rep.Results[collector.NewsAPI] != nil {
		t.Fatalf("failed provider must have nil payload")
	}
	if _, ok := rep.Errors[collector.NewsAPI]; !ok || len(rep.Errors) != 1 {
		t.Fatalf("errors = %v", rep.Errors)
	}

	if len(ar.payloads) != 3 || ar.payloads["newsapi"] != nil {
		t.Fatalf("archive must receive every provider, null for failures: %v", ar.payloads)
	}
	if len(rep.ArchivePaths) != 3 {
		t.Fatalf("archive paths = %v", rep.ArchivePaths)
	}

	nd := rep.Stats[collector.NewsData]
	if nd.Produced != 1 || nd.Skipped != 1 || nd.Inserted != 1 {
		t.Fatalf("newsdata stats = %+v", nd)
	}
	if len(w.calls) != 2 {
		t.Fatalf("writer calls = %d, want 2", len(w.calls))
	}
	for _, c := range w.calls {
		if c.table == "newsdata" && c.articles[0].Interest != "ai" {
			t.Fatalf("interest not propagated: %+v", c.articles[0])
		}
	}

	bs, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	var decoded struct {
		Results map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(bs, &decoded); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if string(decoded.Results["newsapi"]) != "null" {
		t.Fatalf("failed provider should encode as null, got %s", decoded.Results["newsapi"])
	}
}

func TestRunRecoversFromPanickingAdapter(t *testing.T) {
	adapters := map[collector.Provider]collector.Adapter{
		collector.NewsData: &fakeAdapter{p: collector.NewsData, panics: true},
		collector.GNews:    &fakeAdapter{p: collector.GNews, body: gnewsBody},
	}
	o := NewOrchestrator(Deps{Adapters: adapters, Logger: logger.Discard()})
	rep := o.Run(context.Background(), []collector.Provider{collector.NewsData, collector.GNews}, nil)

	if rep.Results[collector.NewsData] != nil || rep.Errors[collector.NewsData] == "" {
		t.Fatalf("panicking provider must be recorded as failed: %+v", rep)
	}
	if rep.Results[collector.GNews] == nil {
		t.Fatalf("sibling provider must still succeed")
	}
}

func TestRunHonoursPerProviderTimeout(t *testing.T) {
	adapters := map[collector.Provider]collector.Adapter{
		collector.Currents: &fakeAdapter{p: collector.Currents, block: true},
	}
	o := NewOrchestrator(Deps{Adapters: adapters, Timeout: 20 * time.Millisecond, Logger: logger.Discard()})

	done := make(chan *Report, 1)
	go func() { done <- o.Run(context.Background(), []collector.Provider{collector.Currents}, nil) }()
	select {
	case rep := <-done:
		if rep.Errors[collector.Currents] == "" {
			t.Fatalf("expected timeout error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not honour timeout")
	}
}

func TestRunSkipsProviderOverQuota(t *testing.T) {
	a := &fakeAdapter{p: collector.MediaStack, body: `{"data":[]}`}
	o := NewOrchestrator(Deps{
		Adapters: map[collector.Provider]collector.Adapter{collector.MediaStack: a},
		Quota:    denyQuota{deny: collector.MediaStack},
		Logger:   logger.Discard(),
	})
	rep := o.Run(context.Background(), []collector.Provider{collector.MediaStack}, nil)
	if rep.Errors[collector.MediaStack] != ErrQuotaExceeded.Error() {
		t.Fatalf("errors = %v", rep.Errors)
	}
	if atomic.LoadInt32(&a.fetches) != 0 {
		t.Fatalf("fetch must not run when quota is exhausted")
	}
}

func TestValidateRunsNoFetch(t *testing.T) {
	verr := &collector.ValidationError{Provider: collector.GNews, Problems: []collector.Problem{{Params: []string{"q"}, Message: "parameter is required"}}}
	g := &fakeAdapter{p: collector.GNews, invalid: verr}
	o := NewOrchestrator(Deps{
		Adapters: map[collector.Provider]collector.Adapter{collector.GNews: g},
		Logger:   logger.Discard(),
	})

	err := o.Validate([]collector.Provider{collector.GNews, collector.NewsAPI}, nil)
	if !collector.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("missing adapter should be reported: %v", err)
	}
	if atomic.LoadInt32(&g.fetches) != 0 {
		t.Fatalf("Validate must not fetch")
	}
}

func TestRunTopicsAggregatesPerTopic(t *testing.T) {
	nd := &fakeAdapter{p: collector.NewsData, body: newsDataBody, failFor: map[string]bool{"space": true}}
	gn := &fakeAdapter{p: collector.GNews, err: errors.New("down")}
	ar := &fakeArchive{}
	w := &fakeWriter{}
	o := NewOrchestrator(Deps{
		Adapters: map[collector.Provider]collector.Adapter{collector.NewsData: nd, collector.GNews: gn},
		Writer:   w,
		Topics:   fakeTopics{topics: []collector.Topic{{ID: 1, Keyword: "ai"}, {ID: 2, Keyword: "space"}, {ID: 3, Keyword: "food"}}},
		Archive:  ar,
		Logger:   logger.Discard(),
	})

	rep, err := o.RunTopics(context.Background(), []collector.Provider{collector.NewsData, collector.GNews}, []uint{1, 2})
	if err != nil {
		t.Fatalf("RunTopics: %v", err)
	}

	var byTopic map[string]json.RawMessage
	if err := json.Unmarshal(rep.Results[collector.NewsData], &byTopic); err != nil {
		t.Fatalf("decode newsdata payload: %v", err)
	}
	if len(byTopic) != 2 || byTopic["1"] == nil || string(byTopic["2"]) != "null" {
		t.Fatalf("per-topic payload = %s", rep.Results[collector.NewsData])
	}
	if _, failed := rep.Errors[collector.NewsData]; failed {
		t.Fatalf("partial topic failure must not fail the provider")
	}
	if rep.Results[collector.GNews] != nil || rep.Errors[collector.GNews] == "" {
		t.Fatalf("provider failing every topic should be null with an error")
	}
	if atomic.LoadInt32(&nd.fetches) != 2 {
		t.Fatalf("topic filter not applied, fetches = %d", nd.fetches)
	}
	if len(ar.payloads) != 2 {
		t.Fatalf("archive payloads = %v", ar.payloads)
	}
	if rep.Stats[collector.NewsData].Queries != 2 || rep.Stats[collector.NewsData].Failed != 1 {
		t.Fatalf("stats = %+v", rep.Stats[collector.NewsData])
	}
}

func TestRunTopicsWithoutSource(t *testing.T) {
	o := NewOrchestrator(Deps{Logger: logger.Discard()})
	if _, err := o.RunTopics(context.Background(), collector.All(), nil); err == nil {
		t.Fatalf("expected error without topic source")
	}
}

func TestIngestReplaysPayload(t *testing.T) {
	w := &fakeWriter{}
	o := NewOrchestrator(Deps{Writer: w, Logger: logger.Discard()})
	stats := o.Ingest(context.Background(), collector.GNews, []byte(gnewsBody))
	if stats.Inserted != 1 || len(w.calls) != 1 || w.calls[0].table != "gnews" {
		t.Fatalf("stats = %+v calls = %d", stats, len(w.calls))
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	o := NewOrchestrator(Deps{Logger: logger.Discard()})
	if _, err := New("not a cron", o, collector.All(), nil, logger.Discard()); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	o := NewOrchestrator(Deps{
		Adapters: map[collector.Provider]collector.Adapter{collector.GNews: &fakeAdapter{p: collector.GNews, body: gnewsBody}},
		Topics:   fakeTopics{topics: []collector.Topic{{ID: 1, Keyword: "ai"}}},
		Logger:   logger.Discard(),
	})
	s, err := New("0 */6 * * *", o, []collector.Provider{collector.GNews}, nil, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep := s.RunOnce(context.Background())
	if rep == nil || rep.Results[collector.GNews] == nil {
		t.Fatalf("unexpected report: %+v", rep)
	}
}
