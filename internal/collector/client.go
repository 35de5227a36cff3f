package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxResponseBytes = 8 << 20 // 8MB
	maxLoggedBody    = 2048
	defaultUserAgent = "NewsHubBot/1.0"
)

// APICall 一次成功请求的留档，参数已脱敏
type APICall struct {
	Provider     Provider
	Endpoint     string
	Params       url.Values
	CustomParams string
	StatusCode   int
	Response     json.RawMessage
	FetchedAt    time.Time
}

// CallRecorder 持久化脱敏后的请求与原始响应
type CallRecorder interface {
	RecordAPICall(ctx context.Context, call APICall) error
}

// UsageTracker 按数据源累计每日调用次数
type UsageTracker interface {
	RecordCall(ctx context.Context, providerID string) bool
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// 单次 HTTP 请求超时；整体截止时间由调用方的 ctx 控制
	RequestTimeout time.Duration
	UserAgent      string
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		RequestTimeout: 30 * time.Second,
		UserAgent:      defaultUserAgent,
	}
}

// RetryClient 带有限次重试与指数退避的 GET 客户端
type RetryClient struct {
	httpClient *http.Client
	cfg        RetryConfig
	calls      CallRecorder
	usage      UsageTracker
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func NewRetryClient(cfg RetryConfig, calls CallRecorder, usage UsageTracker, logger *slog.Logger) *RetryClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		calls:      calls,
		usage:      usage,
		logger:     logger,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// Get 执行请求；全部尝试失败后返回 *FetchError，不会 panic
func (c *RetryClient) Get(ctx context.Context, p Provider, endpoint string, params url.Values) (*RawResponse, error) {
	reqURL := endpoint + "?" + params.Encode()
	safe := Redact(params)
	safeURL := endpoint + "?" + safe.Encode()

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		attempts = attempt + 1
		body, status, err := c.do(ctx, reqURL, safeURL)
		if err == nil {
			raw := &RawResponse{
				Provider:   p,
				StatusCode: status,
				Body:       json.RawMessage(body),
				Request:    safe,
				FetchedAt:  c.now(),
			}
			c.record(ctx, p, endpoint, raw)
			c.logger.Info("fetch succeeded", "provider", p.String(), "attempt", attempts, "status", status, "bytes", len(body))
			return raw, nil
		}

		lastErr, lastStatus = err, status
		args := []any{"provider", p.String(), "attempt", attempts, "url", safeURL, "error", err}
		if status != 0 {
			args = append(args, "status", status)
		}
		if len(body) > 0 {
			args = append(args, "body", truncateBody(body))
		}
		c.logger.Error("fetch attempt failed", args...)

		if attempt == c.cfg.MaxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	c.logger.Error("max retries reached, giving up", "provider", p.String(), "attempts", attempts)
	return nil, &FetchError{Provider: p, Attempts: attempts, StatusCode: lastStatus, Err: lastErr}
}

// backoff 第 attempt 次（从 0 开始）失败后的等待时间：BaseDelay * 2^attempt
func (c *RetryClient) backoff(attempt int) time.Duration {
	return c.cfg.BaseDelay * time.Duration(1<<uint(attempt))
}

func (c *RetryClient) do(ctx context.Context, reqURL, safeURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %s", RedactURL(reqURL))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error 会带上完整 URL，替换为脱敏版本
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = safeURL
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return body, resp.StatusCode, errors.New("response is not valid JSON")
	}
	if msg, failed := providerError(body); failed {
		return body, resp.StatusCode, fmt.Errorf("provider error: %s", msg)
	}
	return body, resp.StatusCode, nil
}

// providerError 识别 HTTP 200 但业务失败的响应：{"status":"error"} 或 {"error":{...}}
func providerError(body []byte) (string, bool) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false
	}
	if raw, ok := env["status"]; ok {
		var status string
		if json.Unmarshal(raw, &status) == nil && strings.EqualFold(status, "error") {
			if msg, ok := env["message"]; ok {
				return string(msg), true
			}
			return string(env["results"]), true
		}
	}
	if raw, ok := env["error"]; ok && string(raw) != "null" && string(raw) != "false" {
		return string(raw), true
	}
	return "", false
}

// record 成功后留档与计数，各执行一次；失败只记日志
func (c *RetryClient) record(ctx context.Context, p Provider, endpoint string, raw *RawResponse) {
	if c.calls != nil {
		call := APICall{
			Provider:     p,
			Endpoint:     endpoint,
			Params:       raw.Request,
			CustomParams: raw.Request.Encode(),
			StatusCode:   raw.StatusCode,
			Response:     raw.Body,
			FetchedAt:    raw.FetchedAt,
		}
		if err := c.calls.RecordAPICall(ctx, call); err != nil {
			c.logger.Warn("record api call failed", "provider", p.String(), "error", err)
		}
	}
	if c.usage != nil && !c.usage.RecordCall(ctx, p.String()) {
		c.logger.Warn("usage tracking failed", "provider", p.String())
	}
}

func truncateBody(b []byte) string {
	if len(b) <= maxLoggedBody {
		return string(b)
	}
	return string(b[:maxLoggedBody]) + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
