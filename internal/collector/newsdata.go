package collector

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// newsDataParams 可以通过 Extras 传入的原生参数
var newsDataParams = newParamSet(
	"endpoint", "id", "q", "qInTitle", "qInMeta", "timeframe", "from_date", "to_date",
	"country", "category", "excludecategory", "language", "tag", "sentiment", "region",
	"domain", "domainurl", "excludedomain", "excludefield", "prioritydomain", "timezone",
	"full_content", "image", "video", "removeduplicate", "size", "page",
)

const (
	newsDataFreeMaxSize = 10
	newsDataPaidMaxSize = 50
	newsDataDateLayout  = "2006-01-02"
)

var newsDataTimeframe = regexp.MustCompile(`^(\d+)(m?)$`)

// NewsDataAdapter 对接 newsdata.io 的 latest / archive 接口
type NewsDataAdapter struct {
	baseAdapter
	paid bool
}

func NewNewsDataAdapter(apiKey string, paid bool, client *RetryClient) *NewsDataAdapter {
	return &NewsDataAdapter{
		baseAdapter: baseAdapter{provider: NewsData, apiKey: apiKey, client: client},
		paid:        paid,
	}
}

func (a *NewsDataAdapter) Params(spec QuerySpec) (url.Values, error) {
	_, v, err := a.resolve(spec)
	return v, err
}

func (a *NewsDataAdapter) Fetch(ctx context.Context, spec QuerySpec) (*RawResponse, error) {
	endpoint, v, err := a.resolve(spec)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, NewsData.BaseURL()+"/"+endpoint, v)
}

func (a *NewsDataAdapter) TopicQuery(t Topic, _ time.Time) QuerySpec {
	spec := QuerySpec{
		Keywords: t.Keyword,
		Language: t.Language,
		Country:  t.Country,
		Extras:   map[string]string{"endpoint": "latest"},
		Interest: t.Keyword,
	}
	if t.Category != "" {
		spec.Categories = []string{t.Category}
	}
	return spec
}

func (a *NewsDataAdapter) resolve(spec QuerySpec) (string, url.Values, error) {
	v := url.Values{}
	setParam(v, "q", spec.Keywords)
	setParam(v, "language", spec.Language)
	setParam(v, "country", spec.Country)
	setParam(v, "category", joinList(spec.Categories))
	setTime(v, "from_date", spec.From, newsDataDateLayout)
	setTime(v, "to_date", spec.To, newsDataDateLayout)
	setInt(v, "size", spec.PageSize)
	setParam(v, "page", spec.Page)
	a.mergeExtras(v, spec.Extras, newsDataParams)

	endpoint := v.Get("endpoint")
	v.Del("endpoint")

	c := newChecker(NewsData, v)
	switch endpoint {
	case "latest":
		c.forbid("only valid for the archive endpoint", "from_date", "to_date")
	case "archive":
		c.forbid("only valid for the latest endpoint", "timeframe", "removeduplicate")
		c.requireAny("q", "qInTitle", "qInMeta", "domain", "country", "category", "language",
			"full_content", "image", "video", "prioritydomain", "domainurl")
	case "":
		c.fail("parameter is required (latest or archive)", "endpoint")
	default:
		c.fail("must be one of latest, archive", "endpoint")
	}

	c.exclusive("q", "qInTitle", "qInMeta")
	c.exclusive("category", "excludecategory")
	c.maxLen(512, "q", "qInTitle", "qInMeta")
	c.maxItems(5, "country", "category", "excludecategory", "language", "domain", "domainurl", "excludedomain", "tag", "region")
	c.maxItems(50, "id")

	maxSize := newsDataFreeMaxSize
	if a.paid {
		maxSize = newsDataPaidMaxSize
	}
	c.intRange("size", 1, maxSize)

	c.oneOf("prioritydomain", "top", "medium", "low")
	c.oneOf("sentiment", "positive", "negative", "neutral")
	for _, flag := range []string{"full_content", "image", "video", "removeduplicate"} {
		c.oneOf(flag, "0", "1")
	}
	c.layout("from_date", newsDataDateLayout)
	c.layout("to_date", newsDataDateLayout)
	if v.Get("timeframe") != "" && !validTimeframe(v.Get("timeframe")) {
		c.fail("must be 1-48 (hours) or 1m-2880m (minutes)", "timeframe")
	}

	if err := c.err(); err != nil {
		return "", nil, err
	}
	return endpoint, v, nil
}

func validTimeframe(s string) bool {
	m := newsDataTimeframe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return false
	}
	if m[2] == "m" {
		return n <= 2880
	}
	return n <= 48
}
