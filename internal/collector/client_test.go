package collector

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/LJTian/NewsHub/internal/logger"
)

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&served, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error"}`))
			return
		}
		if r.URL.Path != "/api/1/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"success","totalResults":0,"results":[]}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)
	a := NewNewsDataAdapter("super-secret", false, tc.client)
	raw, err := a.Fetch(context.Background(), QuerySpec{Keywords: "ai", Extras: map[string]string{"endpoint": "latest"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tc.requests() != 3 {
		t.Fatalf("requests = %d, want 3", tc.requests())
	}
	if len(tc.delays) != 2 {
		t.Fatalf("delays = %v, want 2 waits", tc.delays)
	}
	for i := 1; i < len(tc.delays); i++ {
		if tc.delays[i] < tc.delays[i-1] {
			t.Fatalf("backoff must be non-decreasing: %v", tc.delays)
		}
	}
	if raw.Request.Get("apikey") != Redacted {
		t.Fatalf("stored request not redacted: %v", raw.Request)
	}
	if len(tc.calls.calls) != 1 {
		t.Fatalf("api calls recorded = %d, want 1", len(tc.calls.calls))
	}
	if tc.usage.counts["newsdata"] != 1 {
		t.Fatalf("usage count = %d, want 1", tc.usage.counts["newsdata"])
	}
	if strings.Contains(tc.calls.calls[0].CustomParams, "super-secret") {
		t.Fatalf("recorded params leaked key: %s", tc.calls.calls[0].CustomParams)
	}
}

func TestRetryExhaustedReturnsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)
	a := NewGNewsAdapter("secret", tc.client)
	_, err := a.Fetch(context.Background(), QuerySpec{Keywords: "climate"})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Attempts != 3 || fe.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected fetch error: %+v", fe)
	}
	if len(tc.calls.calls) != 0 || tc.usage.counts["gnews"] != 0 {
		t.Fatalf("failed fetch must not be recorded")
	}
}

func TestProviderErrorBodyIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","results":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)
	_, err := NewNewsDataAdapter("secret", false, tc.client).Fetch(context.Background(),
		QuerySpec{Keywords: "ai", Extras: map[string]string{"endpoint": "latest"}})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestCredentialSentButNeverLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tc := newTestClient(t, srv)
	var buf bytes.Buffer
	tc.client.logger = logger.NewWithWriter(&buf, "debug", "text")

	_, err := NewMediaStackAdapter("top-secret-key", tc.client).Fetch(context.Background(), QuerySpec{Keywords: "tesla"})
	if err == nil {
		t.Fatalf("expected error")
	}

	q := <-tc.seen
	if q.Get("access_key") != "top-secret-key" {
		t.Fatalf("real request must carry the key, got %v", q)
	}
	if strings.Contains(buf.String(), "top-secret-key") {
		t.Fatalf("log output leaked key:\n%s", buf.String())
	}
	if strings.Contains(err.Error(), "top-secret-key") {
		t.Fatalf("error leaked key: %v", err)
	}
}

func TestTransportErrorRedactsURL(t *testing.T) {
	tc := newTestClient(t, nil) // 127.0.0.1:1 拒绝连接
	_, err := NewCurrentsAdapter("hidden-key", tc.client).Fetch(context.Background(), QuerySpec{Keywords: "space"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if strings.Contains(err.Error(), "hidden-key") {
		t.Fatalf("error leaked key: %v", err)
	}
}

func TestBackoffDoubles(t *testing.T) {
	c := NewRetryClient(DefaultRetryConfig(), nil, nil, nil)
	prev := c.backoff(0)
	for i := 1; i < 4; i++ {
		d := c.backoff(i)
		if d != 2*prev {
			t.Fatalf("backoff(%d) = %v, want %v", i, d, 2*prev)
		}
		prev = d
	}
}

func TestRedact(t *testing.T) {
	v := url.Values{"apiKey": {"a"}, "TOKEN": {"b"}, "access_key": {"c"}, "q": {"bitcoin"}}
	out := Redact(v)
	for _, k := range []string{"apiKey", "TOKEN", "access_key"} {
		if out.Get(k) != Redacted {
			t.Fatalf("%s not redacted: %v", k, out)
		}
	}
	if out.Get("q") != "bitcoin" {
		t.Fatalf("non-credential param changed: %v", out)
	}
	if v.Get("apiKey") != "a" {
		t.Fatalf("Redact must not modify its input")
	}

	u := RedactURL("https://gnews.io/api/v4/search?q=x&token=abc")
	if strings.Contains(u, "abc") || !strings.Contains(u, "q=x") {
		t.Fatalf("RedactURL = %s", u)
	}
}
