package collector

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Provider 是固定的数据源集合，新增数据源需要同时实现 Adapter 与 processor 中的映射
type Provider int

const (
	NewsData Provider = iota + 1
	NewsAPI
	GNews
	MediaStack
	Currents
)

type providerInfo struct {
	name        string
	displayName string
	baseURL     string
	credential  string
	resultsKey  string
}

var providers = map[Provider]providerInfo{
	NewsData:   {"newsdata", "NewsData.io", "https://newsdata.io/api/1", "apikey", "results"},
	NewsAPI:    {"newsapi", "NewsAPI.org", "https://newsapi.org/v2/everything", "apiKey", "articles"},
	GNews:      {"gnews", "GNews", "https://gnews.io/api/v4/search", "token", "articles"},
	MediaStack: {"mediastack", "Mediastack", "http://api.mediastack.com/v1/news", "access_key", "data"},
	Currents:   {"currents", "Currents API", "https://api.currentsapi.services/v1/search", "apiKey", "news"},
}

// All 按固定顺序返回全部数据源
func All() []Provider {
	return []Provider{NewsData, NewsAPI, GNews, MediaStack, Currents}
}

// ParseProvider 按名称（大小写不敏感）解析数据源，未知名称返回 *UnknownProviderError
func ParseProvider(name string) (Provider, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range All() {
		if providers[p].name == n {
			return p, nil
		}
	}
	return 0, &UnknownProviderError{Name: name}
}

// ParseProviders 解析一组名称，空列表表示全部
func ParseProviders(names []string) ([]Provider, error) {
	if len(names) == 0 {
		return All(), nil
	}
	out := make([]Provider, 0, len(names))
	seen := make(map[Provider]struct{}, len(names))
	for _, n := range names {
		p, err := ParseProvider(n)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (p Provider) Valid() bool {
	_, ok := providers[p]
	return ok
}

func (p Provider) String() string {
	if info, ok := providers[p]; ok {
		return info.name
	}
	return "unknown"
}

func (p Provider) DisplayName() string { return providers[p].displayName }
func (p Provider) BaseURL() string     { return providers[p].baseURL }

// CredentialParam 密钥所在的查询参数名
func (p Provider) CredentialParam() string { return providers[p].credential }

// ResultsKey 响应中文章列表所在的字段
func (p Provider) ResultsKey() string { return providers[p].resultsKey }

// Table 文章落库的表名，与数据源名称一致
func (p Provider) Table() string { return providers[p].name }

func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Provider) UnmarshalText(b []byte) error {
	v, err := ParseProvider(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Topic 兴趣主题，由外部的兴趣表提供
type Topic struct {
	ID       uint   `json:"id"`
	Keyword  string `json:"keyword"`
	Category string `json:"category"`
	Language string `json:"language"`
	Country  string `json:"country"`
}

// QuerySpec 通用查询参数，由各 Adapter 翻译成数据源自己的参数名。
// Extras 使用数据源原生参数名，优先级高于通用字段。
type QuerySpec struct {
	Keywords   string            `json:"keywords,omitempty"`
	Language   string            `json:"language,omitempty"`
	Country    string            `json:"country,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	From       time.Time         `json:"from,omitempty"`
	To         time.Time         `json:"to,omitempty"`
	PageSize   int               `json:"page_size,omitempty"`
	Page       string            `json:"page,omitempty"`
	Extras     map[string]string `json:"extras,omitempty"`

	// Interest 写入文章的兴趣标签，不会发送给数据源
	Interest string `json:"interest,omitempty"`
}

// RawResponse 一次成功请求的原始返回，Request 已脱敏
type RawResponse struct {
	Provider   Provider
	StatusCode int
	Body       json.RawMessage
	Request    url.Values
	FetchedAt  time.Time
}

// Adapter 抽象每一个新闻 API
type Adapter interface {
	Provider() Provider
	// Params 翻译并校验参数，不包含密钥，也不会发起网络请求
	Params(spec QuerySpec) (url.Values, error)
	Fetch(ctx context.Context, spec QuerySpec) (*RawResponse, error)
	// TopicQuery 把兴趣主题展开成该数据源的查询
	TopicQuery(t Topic, now time.Time) QuerySpec
}
