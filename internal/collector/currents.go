package collector

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// currentsParams 可以通过 Extras 传入的原生参数
var currentsParams = newParamSet(
	"keywords", "language", "country", "start_date", "end_date", "type",
	"category", "page_number", "domain", "domain_not", "page_size", "limit",
)

// CurrentsAdapter 对接 currentsapi.services 的 search 接口
type CurrentsAdapter struct {
	baseAdapter
}

func NewCurrentsAdapter(apiKey string, client *RetryClient) *CurrentsAdapter {
	return &CurrentsAdapter{baseAdapter{provider: Currents, apiKey: apiKey, client: client}}
}

func (a *CurrentsAdapter) Params(spec QuerySpec) (url.Values, error) {
	v := url.Values{}
	setParam(v, "keywords", spec.Keywords)
	setParam(v, "language", spec.Language)
	setParam(v, "country", spec.Country)
	setParam(v, "category", joinList(spec.Categories))
	setTime(v, "start_date", spec.From, time.RFC3339)
	setTime(v, "end_date", spec.To, time.RFC3339)
	setInt(v, "page_size", spec.PageSize)
	setParam(v, "page_number", spec.Page)
	a.mergeExtras(v, spec.Extras, currentsParams)

	c := newChecker(Currents, v)
	c.intRange("page_size", 1, 200)
	c.intRange("limit", 1, 200)
	c.oneOf("type", "1", "2", "3")
	c.intRange("page_number", 1, 0)
	c.disjoint("domain", "domain_not")
	c.layout("start_date", time.RFC3339)
	c.layout("end_date", time.RFC3339)
	if err := c.err(); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *CurrentsAdapter) Fetch(ctx context.Context, spec QuerySpec) (*RawResponse, error) {
	v, err := a.Params(spec)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, Currents.BaseURL(), v)
}

// TopicQuery 最近 30 天的新闻类内容
func (a *CurrentsAdapter) TopicQuery(t Topic, now time.Time) QuerySpec {
	spec := QuerySpec{
		Keywords: t.Keyword,
		Language: t.Language,
		Country:  strings.ToUpper(t.Country),
		From:     now.AddDate(0, 0, -30),
		To:       now,
		PageSize: 30,
		Extras:   map[string]string{"type": "1"},
		Interest: t.Keyword,
	}
	if t.Category != "" {
		spec.Categories = []string{t.Category}
	}
	return spec
}
