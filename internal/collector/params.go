package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// setParam 只写入非空值，保证空参数不会发送出去
func setParam(v url.Values, key, val string) {
	val = strings.TrimSpace(val)
	if val == "" {
		return
	}
	v.Set(key, val)
}

func setInt(v url.Values, key string, n int) {
	if n == 0 {
		return
	}
	v.Set(key, strconv.Itoa(n))
}

func setTime(v url.Values, key string, t time.Time, layout string) {
	if t.IsZero() {
		return
	}
	v.Set(key, t.UTC().Format(layout))
}

// paramSet 数据源认识的全部原生参数名
type paramSet map[string]struct{}

func newParamSet(names ...string) paramSet {
	s := make(paramSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// mergeExtras 把原生参数覆盖到通用翻译结果上；空值表示删除。
// 不在 allowed 中的键不会发送，按名称排序返回。
func mergeExtras(v url.Values, extras map[string]string, allowed paramSet) []string {
	var dropped []string
	for k, val := range extras {
		if _, ok := allowed[k]; !ok {
			dropped = append(dropped, k)
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			v.Del(k)
			continue
		}
		v.Set(k, val)
	}
	sort.Strings(dropped)
	return dropped
}

func joinList(items []string) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return strings.Join(out, ",")
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// checker 收集一次校验中的全部问题，最后统一返回 *ValidationError
type checker struct {
	provider Provider
	v        url.Values
	problems []Problem
}

func newChecker(p Provider, v url.Values) *checker {
	return &checker{provider: p, v: v}
}

func (c *checker) fail(msg string, params ...string) {
	c.problems = append(c.problems, Problem{Params: params, Message: msg})
}

func (c *checker) has(name string) bool {
	return c.v.Get(name) != ""
}

func (c *checker) present(names ...string) []string {
	var out []string
	for _, n := range names {
		if c.has(n) {
			out = append(out, n)
		}
	}
	return out
}

// exclusive 同一请求中最多只能出现其中一个参数
func (c *checker) exclusive(names ...string) {
	if got := c.present(names...); len(got) > 1 {
		c.fail("parameters are mutually exclusive", got...)
	}
}

func (c *checker) require(name string) {
	if !c.has(name) {
		c.fail("parameter is required", name)
	}
}

func (c *checker) requireAny(names ...string) {
	if len(c.present(names...)) == 0 {
		c.fail("at least one of these parameters is required", names...)
	}
}

// forbid 在当前上下文中不允许出现的参数
func (c *checker) forbid(reason string, names ...string) {
	if got := c.present(names...); len(got) > 0 {
		c.fail(reason, got...)
	}
}

func (c *checker) oneOf(name string, allowed ...string) {
	if !c.has(name) {
		return
	}
	val := c.v.Get(name)
	for _, a := range allowed {
		if val == a {
			return
		}
	}
	c.fail(fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")), name)
}

// subset 逗号分隔的每一项都必须在允许集合中
func (c *checker) subset(name string, allowed ...string) {
	if !c.has(name) {
		return
	}
	ok := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		ok[a] = struct{}{}
	}
	for _, item := range splitComma(c.v.Get(name)) {
		if _, found := ok[item]; !found {
			c.fail(fmt.Sprintf("%q is not one of %s", item, strings.Join(allowed, ", ")), name)
			return
		}
	}
}

func (c *checker) intRange(name string, min, max int) {
	if !c.has(name) {
		return
	}
	n, err := strconv.Atoi(c.v.Get(name))
	if err != nil {
		c.fail("must be an integer", name)
		return
	}
	if n < min || (max > 0 && n > max) {
		if max > 0 {
			c.fail(fmt.Sprintf("must be between %d and %d", min, max), name)
		} else {
			c.fail(fmt.Sprintf("must be at least %d", min), name)
		}
	}
}

func (c *checker) maxItems(n int, names ...string) {
	for _, name := range names {
		if got := len(splitComma(c.v.Get(name))); got > n {
			c.fail(fmt.Sprintf("at most %d values allowed, got %d", n, got), name)
		}
	}
}

func (c *checker) maxLen(n int, names ...string) {
	for _, name := range names {
		if l := len([]rune(c.v.Get(name))); l > n {
			c.fail(fmt.Sprintf("at most %d characters allowed, got %d", n, l), name)
		}
	}
}

func (c *checker) layout(name string, layouts ...string) {
	if !c.has(name) {
		return
	}
	val := c.v.Get(name)
	for _, l := range layouts {
		if _, err := time.Parse(l, val); err == nil {
			return
		}
	}
	c.fail(fmt.Sprintf("must match layout %s", strings.Join(layouts, " or ")), name)
}

// disjoint 包含列表与排除列表不能出现相同的值
func (c *checker) disjoint(include, exclude string) {
	if !c.has(include) || !c.has(exclude) {
		return
	}
	in := make(map[string]struct{})
	for _, it := range splitComma(c.v.Get(include)) {
		in[strings.ToLower(it)] = struct{}{}
	}
	for _, it := range splitComma(c.v.Get(exclude)) {
		if _, ok := in[strings.ToLower(it)]; ok {
			c.fail(fmt.Sprintf("%q is both included and excluded", it), include, exclude)
			return
		}
	}
}

func (c *checker) err() error {
	if len(c.problems) == 0 {
		return nil
	}
	return &ValidationError{Provider: c.provider, Problems: c.problems}
}

// baseAdapter 各数据源共享的密钥注入与请求委托
type baseAdapter struct {
	provider Provider
	apiKey   string
	client   *RetryClient
}

func (b baseAdapter) Provider() Provider { return b.provider }

// mergeExtras 合并 Extras 并记录被丢弃的未知参数
func (b baseAdapter) mergeExtras(v url.Values, extras map[string]string, allowed paramSet) {
	dropped := mergeExtras(v, extras, allowed)
	if len(dropped) == 0 {
		return
	}
	log := slog.Default()
	if b.client != nil && b.client.logger != nil {
		log = b.client.logger
	}
	log.Warn("dropping unrecognized parameters", "provider", b.provider.String(), "params", dropped)
}

func (b baseAdapter) fetch(ctx context.Context, endpoint string, params url.Values) (*RawResponse, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", b.provider, ErrMissingCredential)
	}
	q := cloneValues(params)
	q.Set(b.provider.CredentialParam(), b.apiKey)
	return b.client.Get(ctx, b.provider, endpoint, q)
}
