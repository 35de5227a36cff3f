package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/NewsHub/internal/collector"
)

// Skip 单条记录被丢弃的原因，不影响同批其它记录
type Skip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Batch 一次响应的归一化结果
type Batch struct {
	Provider collector.Provider
	Total    int
	Articles []Article
	Skipped  []Skip
	// Warnings 不影响入库的问题，例如无法解析的时间
	Warnings []string
}

func (b Batch) Produced() int     { return len(b.Articles) }
func (b Batch) SkippedCount() int { return len(b.Skipped) }

// mapper 把一条原始记录映射为 Article；返回 error 表示该记录应被跳过
type mapper func(raw json.RawMessage) (Article, []string, error)

var mappers = map[collector.Provider]mapper{
	collector.NewsData:   mapNewsData,
	collector.NewsAPI:    mapNewsAPI,
	collector.GNews:      mapGNews,
	collector.MediaStack: mapMediaStack,
	collector.Currents:   mapCurrents,
}

// NormalizeName 按名称分发，未知名称返回 *collector.UnknownProviderError
func NormalizeName(name string, raw []byte) (Batch, error) {
	p, err := collector.ParseProvider(name)
	if err != nil {
		return Batch{}, err
	}
	return Normalize(p, raw)
}

// Normalize 读取数据源的结果列表并逐条映射；结果列表缺失或为空时返回空批次
func Normalize(p collector.Provider, raw []byte) (Batch, error) {
	m, ok := mappers[p]
	if !ok {
		return Batch{}, &collector.UnknownProviderError{Name: p.String()}
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil || env == nil {
		if err == nil {
			err = errors.New("null payload")
		}
		return Batch{}, fmt.Errorf("%s: response is not a JSON object: %w", p, err)
	}

	var records []json.RawMessage
	if list, ok := env[p.ResultsKey()]; ok && !isNull(list) {
		if err := json.Unmarshal(list, &records); err != nil {
			return Batch{}, fmt.Errorf("%s: %q is not a list: %w", p, p.ResultsKey(), err)
		}
	}

	b := Batch{Provider: p, Total: len(records), Articles: make([]Article, 0, len(records))}
	for i, rec := range records {
		a, warnings, err := m(rec)
		if err != nil {
			b.Skipped = append(b.Skipped, Skip{Index: i, Reason: err.Error()})
			continue
		}
		a.Provider = p
		for _, w := range warnings {
			b.Warnings = append(b.Warnings, fmt.Sprintf("record %d: %s", i, w))
		}
		b.Articles = append(b.Articles, a)
	}
	return b, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// stringList 兼容 null、单个字符串与字符串数组三种写法
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*l = compact(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = compact([]string{s})
	return nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// jsonList 序列化为 JSON 数组，缺失时为 "[]"
func jsonList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	bs, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(bs)
}

func joinComma(items []string) string {
	return strings.Join(items, ",")
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// optional 空串视为缺失
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// parseTime 依次尝试各个格式，结果统一为 UTC；空值返回 nil 且不告警
func parseTime(field, s string, layouts ...string) (*time.Time, []string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			u := t.UTC()
			return &u, nil
		}
	}
	return nil, []string{fmt.Sprintf("unparseable %s %q", field, s)}
}

// extra 只保留非空的附加字段
func extra(fields map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isNull(v) {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
