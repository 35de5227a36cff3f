package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// mediaStackParams 可以通过 Extras 传入的原生参数
var mediaStackParams = newParamSet(
	"keywords", "countries", "categories", "languages", "sources",
	"sort", "limit", "offset", "date",
)

const mediaStackDateLayout = "2006-01-02"

// MediaStackAdapter 对接 mediastack 的 news 接口，免费套餐只支持 http
type MediaStackAdapter struct {
	baseAdapter
}

func NewMediaStackAdapter(apiKey string, client *RetryClient) *MediaStackAdapter {
	return &MediaStackAdapter{baseAdapter{provider: MediaStack, apiKey: apiKey, client: client}}
}

func (a *MediaStackAdapter) Params(spec QuerySpec) (url.Values, error) {
	v := url.Values{}
	setParam(v, "keywords", spec.Keywords)
	setParam(v, "languages", spec.Language)
	setParam(v, "countries", spec.Country)
	setParam(v, "categories", joinList(spec.Categories))
	setInt(v, "limit", spec.PageSize)
	setParam(v, "offset", spec.Page)
	setParam(v, "date", mediaStackDate(spec.From, spec.To))
	a.mergeExtras(v, spec.Extras, mediaStackParams)

	c := newChecker(MediaStack, v)
	c.require("keywords")
	c.oneOf("sort", "published_desc", "published_asc", "popularity")
	c.intRange("limit", 1, 100)
	c.intRange("offset", 0, 0)
	for _, name := range []string{"categories", "countries", "languages", "sources"} {
		signedDisjoint(c, name)
	}
	if d := v.Get("date"); d != "" && !validMediaStackDate(d) {
		c.fail("must be YYYY-MM-DD or YYYY-MM-DD,YYYY-MM-DD", "date")
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *MediaStackAdapter) Fetch(ctx context.Context, spec QuerySpec) (*RawResponse, error) {
	v, err := a.Params(spec)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, MediaStack.BaseURL(), v)
}

func (a *MediaStackAdapter) TopicQuery(t Topic, _ time.Time) QuerySpec {
	spec := QuerySpec{
		Keywords: t.Keyword,
		Language: t.Language,
		Country:  strings.ToLower(t.Country),
		PageSize: 30,
		Extras:   map[string]string{"sort": "published_desc"},
		Interest: t.Keyword,
	}
	if t.Category != "" {
		spec.Categories = []string{t.Category}
	}
	return spec
}

func mediaStackDate(from, to time.Time) string {
	switch {
	case !from.IsZero() && !to.IsZero():
		return from.UTC().Format(mediaStackDateLayout) + "," + to.UTC().Format(mediaStackDateLayout)
	case !from.IsZero():
		return from.UTC().Format(mediaStackDateLayout)
	case !to.IsZero():
		return to.UTC().Format(mediaStackDateLayout)
	}
	return ""
}

func validMediaStackDate(s string) bool {
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if _, err := time.Parse(mediaStackDateLayout, strings.TrimSpace(p)); err != nil {
			return false
		}
	}
	return true
}

// signedDisjoint mediastack 用 "-" 前缀表示排除，同一值不能既包含又排除
func signedDisjoint(c *checker, name string) {
	include := make(map[string]struct{})
	var exclude []string
	for _, item := range splitComma(c.v.Get(name)) {
		item = strings.ToLower(item)
		if strings.HasPrefix(item, "-") {
			exclude = append(exclude, strings.TrimPrefix(item, "-"))
			continue
		}
		include[item] = struct{}{}
	}
	for _, item := range exclude {
		if _, ok := include[item]; ok {
			c.fail(fmt.Sprintf("%q is both included and excluded", item), name)
			return
		}
	}
}
