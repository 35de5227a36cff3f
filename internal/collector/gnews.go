package collector

import (
	"context"
	"net/url"
	"time"
)

// gnewsParams 可以通过 Extras 传入的原生参数
var gnewsParams = newParamSet(
	"q", "lang", "country", "max", "in", "nullable", "from", "to", "sortby", "page", "expand",
)

const gnewsTimeLayout = "2006-01-02T15:04:05Z"

// GNewsAdapter 对接 gnews.io 的 search 接口
type GNewsAdapter struct {
	baseAdapter
}

func NewGNewsAdapter(apiKey string, client *RetryClient) *GNewsAdapter {
	return &GNewsAdapter{baseAdapter{provider: GNews, apiKey: apiKey, client: client}}
}

func (a *GNewsAdapter) Params(spec QuerySpec) (url.Values, error) {
	v := url.Values{}
	setParam(v, "q", spec.Keywords)
	setParam(v, "lang", spec.Language)
	setParam(v, "country", spec.Country)
	setInt(v, "max", spec.PageSize)
	setTime(v, "from", spec.From, gnewsTimeLayout)
	setTime(v, "to", spec.To, gnewsTimeLayout)
	setParam(v, "page", spec.Page)
	a.mergeExtras(v, spec.Extras, gnewsParams)

	c := newChecker(GNews, v)
	c.require("q")
	c.intRange("max", 1, 100)
	c.subset("in", "title", "description", "content")
	c.subset("nullable", "description", "content", "image")
	c.oneOf("sortby", "publishedAt", "relevance")
	c.intRange("page", 1, 0)
	c.oneOf("expand", "content")
	c.layout("from", gnewsTimeLayout)
	c.layout("to", gnewsTimeLayout)
	if err := c.err(); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *GNewsAdapter) Fetch(ctx context.Context, spec QuerySpec) (*RawResponse, error) {
	v, err := a.Params(spec)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, GNews.BaseURL(), v)
}

// TopicQuery 最近 60 天，每次 10 条，允许无图片
func (a *GNewsAdapter) TopicQuery(t Topic, now time.Time) QuerySpec {
	return QuerySpec{
		Keywords: t.Keyword,
		Language: t.Language,
		PageSize: 10,
		From:     now.AddDate(0, 0, -60),
		To:       now,
		Extras: map[string]string{
			"in":       "title,description",
			"nullable": "image",
		},
		Interest: t.Keyword,
	}
}
