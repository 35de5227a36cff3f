package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/NewsHub/internal/logger"
)

// rewriteTransport 把所有请求转发到测试服务器，并统计真实发出的请求数
type rewriteTransport struct {
	target *url.URL
	hits   *int32
	seen   chan url.Values
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(rt.hits, 1)
	if rt.seen != nil {
		select {
		case rt.seen <- req.URL.Query():
		default:
		}
	}
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []APICall
}

func (f *fakeRecorder) RecordAPICall(_ context.Context, call APICall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

type fakeUsage struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeUsage) RecordCall(_ context.Context, providerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[providerID]++
	return true
}

type testClient struct {
	client *RetryClient
	hits   *int32
	delays []time.Duration
	seen   chan url.Values
	calls  *fakeRecorder
	usage  *fakeUsage
}

// newTestClient 构造指向 srv 的 RetryClient；srv 为 nil 时任何请求都会被计数后失败
func newTestClient(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	tc := &testClient{
		hits:  new(int32),
		seen:  make(chan url.Values, 16),
		calls: &fakeRecorder{},
		usage: &fakeUsage{},
	}
	target := &url.URL{Scheme: "http", Host: "127.0.0.1:1"}
	if srv != nil {
		u, err := url.Parse(srv.URL)
		if err != nil {
			t.Fatalf("parse server url: %v", err)
		}
		target = u
	}

	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, RequestTimeout: 5 * time.Second}
	c := NewRetryClient(cfg, tc.calls, tc.usage, logger.Discard())
	c.httpClient.Transport = rewriteTransport{target: target, hits: tc.hits, seen: tc.seen}
	c.sleep = func(_ context.Context, d time.Duration) error {
		tc.delays = append(tc.delays, d)
		return nil
	}
	tc.client = c
	return tc
}

func (tc *testClient) requests() int {
	return int(atomic.LoadInt32(tc.hits))
}
