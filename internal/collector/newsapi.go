package collector

import (
	"context"
	"net/url"
	"time"
)

// newsAPIParams 可以通过 Extras 传入的原生参数
var newsAPIParams = newParamSet(
	"q", "qInTitle", "searchIn", "sources", "domains", "excludeDomains",
	"from", "to", "language", "sortBy", "pageSize", "page",
)

const newsAPITimeLayout = "2006-01-02T15:04:05"

var newsAPILanguages = []string{"ar", "de", "en", "es", "fr", "he", "it", "nl", "no", "pt", "ru", "sv", "ud", "zh"}

// NewsAPIAdapter 对接 newsapi.org 的 everything 接口
type NewsAPIAdapter struct {
	baseAdapter
}

func NewNewsAPIAdapter(apiKey string, client *RetryClient) *NewsAPIAdapter {
	return &NewsAPIAdapter{baseAdapter{provider: NewsAPI, apiKey: apiKey, client: client}}
}

func (a *NewsAPIAdapter) Params(spec QuerySpec) (url.Values, error) {
	v := url.Values{}
	setParam(v, "q", spec.Keywords)
	setParam(v, "language", spec.Language)
	setTime(v, "from", spec.From, newsAPITimeLayout)
	setTime(v, "to", spec.To, newsAPITimeLayout)
	setInt(v, "pageSize", spec.PageSize)
	setParam(v, "page", spec.Page)
	a.mergeExtras(v, spec.Extras, newsAPIParams)

	c := newChecker(NewsAPI, v)
	c.requireAny("q", "qInTitle", "sources", "domains")
	c.maxLen(500, "q", "qInTitle")
	c.subset("searchIn", "title", "description", "content")
	c.oneOf("language", newsAPILanguages...)
	c.oneOf("sortBy", "relevancy", "popularity", "publishedAt")
	c.intRange("pageSize", 1, 100)
	c.intRange("page", 1, 0)
	c.maxItems(20, "sources")
	c.disjoint("domains", "excludeDomains")
	c.layout("from", "2006-01-02", newsAPITimeLayout, time.RFC3339)
	c.layout("to", "2006-01-02", newsAPITimeLayout, time.RFC3339)
	if err := c.err(); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *NewsAPIAdapter) Fetch(ctx context.Context, spec QuerySpec) (*RawResponse, error) {
	v, err := a.Params(spec)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, NewsAPI.BaseURL(), v)
}

// TopicQuery 按标题和摘要搜索最近 30 天
func (a *NewsAPIAdapter) TopicQuery(t Topic, now time.Time) QuerySpec {
	return QuerySpec{
		Keywords: t.Keyword,
		Language: t.Language,
		Extras: map[string]string{
			"searchIn": "title,description",
			"from":     now.AddDate(0, 0, -30).UTC().Format("2006-01-02"),
			"to":       now.UTC().Format("2006-01-02"),
		},
		Interest: t.Keyword,
	}
}
